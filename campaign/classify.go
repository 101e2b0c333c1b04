package campaign

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/emersion/go-smtp"
)

// Kind groups delivery failures by what the sender can do about them.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindPermanent Kind = "permanent"
	KindTemporary Kind = "temporary"
	KindNetwork   Kind = "network"
	KindUnknown   Kind = "unknown"
)

const gmailAuthHint = "Gmail authentication failed. Possible causes: " +
	"an App Password is required when 2FA is enabled, " +
	"access for less secure apps is disabled, or an unlock captcha is pending"

// Failure is a classified delivery error.
type Failure struct {
	Kind Kind
	// Code is the SMTP reply code, zero when the server never answered.
	Code     int
	Enhanced string
	Reason   string
}

// Retryable reports whether sending again later may succeed.
func (f Failure) Retryable() bool {
	return f.Kind == KindTemporary || f.Kind == KindNetwork
}

func (f Failure) String() string {
	switch {
	case f.Code != 0 && f.Enhanced != "":
		return fmt.Sprintf("%s: %d %s %s", f.Kind, f.Code, f.Enhanced, f.Reason)
	case f.Code != 0:
		return fmt.Sprintf("%s: %d %s", f.Kind, f.Code, f.Reason)
	default:
		return fmt.Sprintf("%s: %s", f.Kind, f.Reason)
	}
}

// Classify maps a Transport error onto a Failure. gmail adds the App Password
// hint to authentication failures.
func Classify(err error, gmail bool) Failure {
	if err == nil {
		return Failure{}
	}

	f := Failure{Kind: KindUnknown, Reason: err.Error()}

	var smtpErr *smtp.SMTPError
	var netErr net.Error
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	switch {
	case errors.As(err, &smtpErr):
		f.Code = smtpErr.Code
		f.Reason = smtpErr.Message
		if smtpErr.EnhancedCode[0] > 0 {
			e := smtpErr.EnhancedCode
			f.Enhanced = fmt.Sprintf("%d.%d.%d", e[0], e[1], e[2])
		}
		f.Kind = kindForReply(f.Code, f.Enhanced)
	case errors.Is(err, context.Canceled):
		f.Kind = KindUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		f.Kind = KindNetwork
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &hostErr):
		f.Kind = KindNetwork
		f.Reason = "tls: " + err.Error()
	}

	if f.Kind == KindAuth && gmail {
		f.Reason = gmailAuthHint + ". Technical details: " + f.Reason
	}
	return f
}

func kindForReply(code int, enhanced string) Kind {
	switch {
	case code == 535 || code == 534 || code == 530 || strings.HasPrefix(enhanced, "5.7.8") || enhanced == "5.7.9":
		return KindAuth
	case code >= 500:
		return KindPermanent
	case code >= 400:
		return KindTemporary
	default:
		return KindUnknown
	}
}
