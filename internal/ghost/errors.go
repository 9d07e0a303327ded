package ghost

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// Transport failure categories reported to the user.
const (
	CategoryDNS               = "DNSError"
	CategoryTimeout           = "TimeoutError"
	CategoryConnectionRefused = "ConnectionRefused"
	CategoryTLS               = "TLSError"
	CategoryHTTP              = "HTTPError"
	CategoryNetwork           = "NetworkError"
)

// Category names the kind of transport failure err represents.
func Category(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return CategoryHTTP
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CategoryTimeout
		}
		return CategoryDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return CategoryConnectionRefused
	}
	var (
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		certErr     x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
		verifyErr   *tls.CertificateVerificationError
	)
	if errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certErr) ||
		errors.As(err, &recordErr) || errors.As(err, &verifyErr) {
		return CategoryTLS
	}
	return CategoryNetwork
}
