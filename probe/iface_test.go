package probe

import "testing"

func TestAvailableInterfaces(t *testing.T) {
	names, err := AvailableInterfaces()
	if err != nil {
		t.Fatalf("AvailableInterfaces() error = %v", err)
	}
	for _, n := range names {
		if n == "" {
			t.Error("AvailableInterfaces() returned an empty name")
		}
	}
}

func TestDefaultInterface(t *testing.T) {
	iface, err := DefaultInterface()
	if err != nil {
		t.Skip("No non-loopback interface available")
	}
	if iface.Name == "" {
		t.Error("DefaultInterface() returned an empty name")
	}
}
