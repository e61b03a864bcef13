package events

import "testing"

func TestEmitterDeliversSubscribedKinds(t *testing.T) {
	emitter := NewEmitter()

	var got []Kind
	emitter.Subscribe(func(ev Event) { got = append(got, ev.Kind) }, KindClick, KindScroll)

	emitter.Dispatch(Event{Kind: KindClick})
	emitter.Dispatch(Event{Kind: KindMouseMove})
	emitter.Dispatch(Event{Kind: KindScroll})

	if len(got) != 2 || got[0] != KindClick || got[1] != KindScroll {
		t.Errorf("Expected [click scroll], got %v", got)
	}
}

func TestEmitterOrderAndUnsubscribe(t *testing.T) {
	emitter := NewEmitter()

	var calls []string
	unsubFirst := emitter.Subscribe(func(Event) { calls = append(calls, "first") }, KindPageHide)
	emitter.Subscribe(func(Event) { calls = append(calls, "second") }, KindPageHide)

	emitter.Dispatch(Event{Kind: KindPageHide})
	unsubFirst()
	unsubFirst()
	emitter.Dispatch(Event{Kind: KindPageHide})

	want := []string{"first", "second", "second"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %v, got %v", want, calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("Call %d: expected %s, got %s", i, want[i], calls[i])
		}
	}
	if emitter.Subscribers() != 1 {
		t.Errorf("Expected 1 subscriber, got %d", emitter.Subscribers())
	}
}

func TestHandlerMaySubscribeDuringDispatch(t *testing.T) {
	emitter := NewEmitter()

	emitter.Subscribe(func(Event) {
		emitter.Subscribe(func(Event) {}, KindClick)
	}, KindClick)

	emitter.Dispatch(Event{Kind: KindClick})
	if emitter.Subscribers() != 2 {
		t.Errorf("Expected 2 subscribers, got %d", emitter.Subscribers())
	}
}
