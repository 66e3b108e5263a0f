package activities

import "testing"

type greeter struct{}

func (greeter) SayHello(args map[string]any) (map[string]any, error) {
	return map[string]any{"message": "hello " + args["name"].(string)}, nil
}

func (greeter) notExported(args map[string]any) (map[string]any, error) {
	return nil, nil
}

func (greeter) WrongShape(x int) error { return nil }

func TestRegistry_RegisterDiscoversActivityShapedMethods(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("greeter", greeter{}); err != nil {
		t.Fatal(err)
	}

	activity, ok := r.Get("greeter.sayHello")
	if !ok {
		t.Fatal("expected greeter.sayHello to be registered")
	}

	out, err := activity(map[string]any{"name": "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if out["message"] != "hello ada" {
		t.Fatalf("unexpected result: %v", out)
	}

	if _, ok := r.Get("greeter.wrongShape"); ok {
		t.Fatal("expected WrongShape not to be registered")
	}
}

type empty struct{}

func TestRegistry_RegisterFailsWhenNoActivitiesFound(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("empty", empty{}); err == nil {
		t.Fatal("expected error registering a group with no activity-shaped methods")
	}
}
