package activities

import (
	"fmt"
	"reflect"
	"strings"
)

// Activity is a named, reusable step action. Registry discovers activities
// by reflecting over a struct's exported methods.
type Activity func(args map[string]any) (map[string]any, error)

// Registry holds the activities discovered from registered Go structs,
// addressable by "group.method" name (e.g. "account.provision").
type Registry struct {
	activities map[string]Activity
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{activities: make(map[string]Activity)}
}

// Get looks up a previously registered activity by name.
func (r *Registry) Get(name string) (Activity, bool) {
	a, ok := r.activities[name]
	return a, ok
}

// Register discovers activities from group's exported methods matching the
// signature func(map[string]any) (map[string]any, error), registering each
// under "groupName.methodName" (method name lower-cased at the first rune).
func (r *Registry) Register(groupName string, group any) error {
	if group == nil {
		return fmt.Errorf("activities: group %q is nil", groupName)
	}

	groupType := reflect.TypeOf(group)
	groupValue := reflect.ValueOf(group)

	found := 0
	for i := 0; i < groupType.NumMethod(); i++ {
		method := groupType.Method(i)
		if !method.IsExported() {
			continue
		}
		if !isActivitySignature(method.Type) {
			continue
		}

		name := fmt.Sprintf("%s.%s", groupName, toLowerFirst(method.Name))
		r.activities[name] = wrapActivityMethod(groupValue, method)
		found++
	}

	if found == 0 {
		return fmt.Errorf("activities: group %q exposes no activity-shaped methods", groupName)
	}
	return nil
}

// isActivitySignature reports whether methodType matches
// func(receiver, map[string]any) (map[string]any, error).
func isActivitySignature(methodType reflect.Type) bool {
	if methodType.NumIn() != 2 || methodType.NumOut() != 2 {
		return false
	}
	mapType := reflect.TypeOf(map[string]any(nil))
	if methodType.In(1) != mapType || methodType.Out(0) != mapType {
		return false
	}
	errType := reflect.TypeOf((*error)(nil)).Elem()
	return methodType.Out(1) == errType
}

func wrapActivityMethod(receiver reflect.Value, method reflect.Method) Activity {
	return func(args map[string]any) (map[string]any, error) {
		results := method.Func.Call([]reflect.Value{receiver, reflect.ValueOf(args)})

		out, _ := results[0].Interface().(map[string]any)
		var err error
		if !results[1].IsNil() {
			err = results[1].Interface().(error)
		}
		return out, err
	}
}

func toLowerFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return strings.ToLower(string(runes[0])) + string(runes[1:])
}
