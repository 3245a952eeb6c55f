package main

import (
	"net"
	"testing"
)

func TestShouldServe(t *testing.T) {
	tests := []struct {
		record, serve bool
		want          bool
	}{
		{false, false, true},
		{false, true, true},
		{true, false, false},
		{true, true, true},
	}
	for _, tt := range tests {
		if got := shouldServe(tt.record, tt.serve); got != tt.want {
			t.Errorf("shouldServe(record=%v, serve=%v): expected %v, got %v", tt.record, tt.serve, tt.want, got)
		}
	}
}

func TestControlHostKeepsConcreteAddress(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8080}
	if got := controlHost(addr); got != "127.0.0.1:8080" {
		t.Errorf("Expected 127.0.0.1:8080, got %s", got)
	}
}
