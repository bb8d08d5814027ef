package control

import "testing"

func TestDispatchSetBitrateCap(t *testing.T) {
	var gotID, gotBps uint32
	b := &Bridge{callbacks: Callbacks{
		OnSetBitrateCap: func(id, bps uint32) error {
			gotID, gotBps = id, bps
			return nil
		},
	}}

	resp := b.dispatch(Command{
		Command: "set_bitrate_cap",
		Params:  map[string]any{"subscriber_id": uint32(7), "bitrate_bps": uint32(512_000)},
	})

	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok (error=%q)", resp.Status, resp.Error)
	}
	if gotID != 7 || gotBps != 512_000 {
		t.Errorf("callback got (%d, %d), want (7, 512000)", gotID, gotBps)
	}
}

func TestDispatchSetBitrateCapMissingParams(t *testing.T) {
	b := &Bridge{callbacks: Callbacks{
		OnSetBitrateCap: func(id, bps uint32) error { return nil },
	}}

	resp := b.dispatch(Command{Command: "set_bitrate_cap", Params: map[string]any{}})
	if resp.Status != "error" {
		t.Fatalf("status = %q, want error", resp.Status)
	}
}

func TestDispatchUnregisterSubscriber(t *testing.T) {
	var gotID uint32
	called := false
	b := &Bridge{callbacks: Callbacks{
		OnUnregisterSubscriber: func(id uint32) error {
			called = true
			gotID = id
			return nil
		},
	}}

	resp := b.dispatch(Command{
		Command: "unregister_subscriber",
		Params:  map[string]any{"subscriber_id": uint32(3)},
	})

	if resp.Status != "ok" || !called || gotID != 3 {
		t.Fatalf("unexpected result: status=%q called=%v gotID=%d", resp.Status, called, gotID)
	}
}

func TestDispatchGetStatus(t *testing.T) {
	b := &Bridge{callbacks: Callbacks{
		OnGetStatus: func() map[string]any {
			return map[string]any{"subscribers": 2}
		},
	}}

	resp := b.dispatch(Command{Command: "get_status"})
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
	if resp.Data["subscribers"] != 2 {
		t.Errorf("Data[subscribers] = %v, want 2", resp.Data["subscribers"])
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	b := &Bridge{}
	resp := b.dispatch(Command{Command: "do_a_barrel_roll"})
	if resp.Status != "error" {
		t.Fatalf("status = %q, want error", resp.Status)
	}
}

func TestDispatchCallbackNotWired(t *testing.T) {
	b := &Bridge{}
	resp := b.dispatch(Command{
		Command: "set_bitrate_cap",
		Params:  map[string]any{"subscriber_id": uint32(1), "bitrate_bps": uint32(1)},
	})
	if resp.Status != "error" {
		t.Fatalf("status = %q, want error when callback unset", resp.Status)
	}
}

func TestToUint32(t *testing.T) {
	cases := []struct {
		in   any
		want uint32
		ok   bool
	}{
		{uint32(5), 5, true},
		{uint64(5), 5, true},
		{int(5), 5, true},
		{int64(5), 5, true},
		{float64(5), 5, true},
		{"nope", 0, false},
	}
	for _, tc := range cases {
		got, ok := toUint32(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("toUint32(%v) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
