package tracker

import "testing"

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Endpoint
	}{
		{
			name: "udp with port and path",
			raw:  "udp://tracker.opentrackr.org:1337/announce",
			want: Endpoint{Scheme: SchemeUDP, Host: "tracker.opentrackr.org", Port: 1337, Path: "/announce"},
		},
		{
			name: "http with port",
			raw:  "http://tracker.files.fm:6969/announce",
			want: Endpoint{Scheme: SchemeHTTP, Host: "tracker.files.fm", Port: 6969, Path: "/announce"},
		},
		{
			name: "default port",
			raw:  "udp://open.stealth.si/announce",
			want: Endpoint{Scheme: SchemeUDP, Host: "open.stealth.si", Port: 80, Path: "/announce"},
		},
		{
			name: "no path",
			raw:  "udp://open.demonii.com:1337",
			want: Endpoint{Scheme: SchemeUDP, Host: "open.demonii.com", Port: 1337},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ParseEndpoint(c.raw)
			if err != nil {
				t.Fatalf("ParseEndpoint(%q): %v", c.raw, err)
			}
			if got != c.want {
				t.Errorf("endpoint = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestParseEndpointRejects(t *testing.T) {
	for _, raw := range []string{
		"wss://tracker.example.com/announce", // unsupported scheme
		"udp://",                             // no host
		"udp://host:notaport/announce",
	} {
		if _, err := ParseEndpoint(raw); err == nil {
			t.Errorf("ParseEndpoint(%q) should fail", raw)
		}
	}
}

func TestEndpointAddr(t *testing.T) {
	e := Endpoint{Scheme: SchemeUDP, Host: "tracker.example.com", Port: 1337}
	if got := e.Addr(); got != "tracker.example.com:1337" {
		t.Errorf("Addr = %q", got)
	}
}
