package capture

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
)

// Error domains recorded in the error.type attribute.
const (
	DomainNetwork = "NetworkError"
	DomainUnknown = "UnknownError"
)

// Error codes recorded in the nettrace.error.code attribute.
const (
	ErrCodeUnknown    = -1
	ErrCodeCancelled  = 1
	ErrCodeDNS        = 2
	ErrCodeConnection = 3
	ErrCodeTLS        = 4
	ErrCodeBodyRead   = 5
	ErrCodeTimeout    = 7
)

// CodedError is an error that carries its own domain and numeric code.
// DescribeError uses them unchanged.
type CodedError interface {
	error
	Domain() string
	Code() int
}

// ErrorInfo is the classification of a request error.
type ErrorInfo struct {
	Domain  string
	Code    int
	Message string
}

// RequestError is a CodedError value.
type RequestError struct {
	ErrDomain string
	ErrCode   int
	Message   string
	Err       error
}

// NewRequestError returns a CodedError with the given domain, code and message.
func NewRequestError(domain string, code int, message string) *RequestError {
	return &RequestError{ErrDomain: domain, ErrCode: code, Message: message}
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.ErrDomain
}

// Domain implements CodedError.
func (e *RequestError) Domain() string { return e.ErrDomain }

// Code implements CodedError.
func (e *RequestError) Code() int { return e.ErrCode }

func (e *RequestError) Unwrap() error { return e.Err }

// DescribeError classifies err into a domain, a numeric code and a message.
func DescribeError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}

	var coded CodedError
	if errors.As(err, &coded) {
		return ErrorInfo{Domain: coded.Domain(), Code: coded.Code(), Message: coded.Error()}
	}

	message := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
		message = err.Error()
	}

	info := ErrorInfo{Domain: DomainNetwork, Message: message}

	var (
		netErr   net.Error
		dnsErr   *net.DNSError
		opErr    *net.OpError
		tlsErr   *tls.CertificateVerificationError
		authErr  x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		invalErr x509.CertificateInvalidError
	)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		info.Code = ErrCodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		info.Code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		info.Code = ErrCodeCancelled
	case errors.As(err, &dnsErr):
		info.Code = ErrCodeDNS
	case errors.As(err, &tlsErr), errors.As(err, &authErr), errors.As(err, &hostErr), errors.As(err, &invalErr):
		info.Code = ErrCodeTLS
	case errors.As(err, &opErr):
		info.Code = ErrCodeConnection
	default:
		info.Domain = DomainUnknown
		info.Code = ErrCodeUnknown
	}

	return info
}
