package ssh

import "testing"

func TestRemoteAddr(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "http://api.internal:8787/x", want: "api.internal:8787"},
		{in: "https://api.internal", want: "api.internal:443"},
		{in: "http://10.0.0.2", want: "10.0.0.2:80"},
		{in: "/relative", wantErr: true},
	}
	for _, tt := range tests {
		got, err := RemoteAddr(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("RemoteAddr(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("RemoteAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOriginHost(t *testing.T) {
	for in, want := range map[string]string{
		"https://api.example.com/base": "api.example.com",
		"http://api.internal:8787":     "api.internal:8787",
	} {
		got, err := OriginHost(in)
		if err != nil || got != want {
			t.Errorf("OriginHost(%q) = %q, %v, want %q", in, got, err, want)
		}
	}
	if _, err := OriginHost("/relative"); err == nil {
		t.Error("OriginHost of a relative url should fail")
	}
}
