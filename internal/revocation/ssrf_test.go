package revocation

import (
	"net"
	"testing"
)

func resolveTo(ip string) func(string) ([]net.IP, error) {
	return func(string) ([]net.IP, error) {
		return []net.IP{net.ParseIP(ip)}, nil
	}
}

func TestValidateURL_RejectsNonHTTPScheme(t *testing.T) {
	_, err := validateURL("ftp://example.com/crl", nil, resolveTo("93.184.216.34"))
	if err == nil {
		t.Error("expected ftp scheme to be rejected")
	}
}

func TestValidateURL_RejectsDisallowedPort(t *testing.T) {
	_, err := validateURL("https://example.com:8443/crl", nil, resolveTo("93.184.216.34"))
	if err == nil {
		t.Error("expected non-allow-listed port to be rejected")
	}
}

func TestValidateURL_AllowsExplicitlyAllowedPort(t *testing.T) {
	_, err := validateURL("https://example.com:8443/crl", map[string]bool{"8443": true}, resolveTo("93.184.216.34"))
	if err != nil {
		t.Errorf("expected allow-listed port to pass, got %v", err)
	}
}

func TestValidateURL_RejectsPrivateIPv4(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "10.0.0.5", "192.168.1.1", "169.254.1.1", "100.64.0.1"} {
		_, err := validateURL("https://internal.example/crl", nil, resolveTo(ip))
		if err == nil {
			t.Errorf("expected resolution to %s to be rejected", ip)
		}
	}
}

func TestValidateURL_AllowsPublicIPv4(t *testing.T) {
	_, err := validateURL("https://example.com/crl", nil, resolveTo("93.184.216.34"))
	if err != nil {
		t.Errorf("expected public IP to be allowed, got %v", err)
	}
}

func TestValidateURL_RejectsNoResolution(t *testing.T) {
	_, err := validateURL("https://example.com/crl", nil, func(string) ([]net.IP, error) {
		return nil, nil
	})
	if err == nil {
		t.Error("expected empty resolution to be rejected")
	}
}
