package rabbitmq

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Default connection parameters, applied wherever a field is left empty.
const (
	DefaultHost     = "localhost:5672"
	DefaultUser     = "guest"
	DefaultPassword = "guest"
	DefaultVHost    = "/"
)

// ConnectionParams holds the parameters used to open a physical connection.
// Empty fields take the package defaults during normalization.
type ConnectionParams struct {
	Host     string
	User     string
	Password string
	VHost    string
	Extra    map[string]string
}

// withDefaults returns a copy with defaults filled in for empty fields.
func (p ConnectionParams) withDefaults() ConnectionParams {
	if p.Host == "" {
		p.Host = DefaultHost
	}
	if p.User == "" {
		p.User = DefaultUser
	}
	if p.Password == "" {
		p.Password = DefaultPassword
	}
	if p.VHost == "" {
		p.VHost = DefaultVHost
	}
	return p
}

// URL returns the AMQP URI for the parameters. This is the only place the
// password appears in clear text. Userinfo is percent-escaped, never
// form-encoded: a space must round-trip as %20, not +.
func (p ConnectionParams) URL() string {
	p = p.withDefaults()
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Host,
	}
	return u.String() + vhostPath(p.VHost)
}

func vhostPath(vhost string) string {
	if vhost == "/" {
		return "/"
	}
	return "/" + url.PathEscape(vhost)
}

// Signature is the normalized, comparable identity of a set of connection
// parameters. Two signatures are equal iff all normalized fields are equal,
// regardless of the order extra parameters were supplied or whether defaults
// were applied explicitly.
type Signature struct {
	host     string
	user     string
	password string
	vhost    string
	extra    string
}

// NewSignature normalizes params into a Signature. Extra parameters are
// canonicalized by sorted key so supply order never matters.
func NewSignature(params ConnectionParams) Signature {
	p := params.withDefaults()

	var extra string
	if len(p.Extra) > 0 {
		keys := make([]string, 0, len(p.Extra))
		for k := range p.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+p.Extra[k])
		}
		extra = strings.Join(pairs, ",")
	}

	return Signature{
		host:     p.Host,
		user:     p.User,
		password: p.Password,
		vhost:    p.VHost,
		extra:    extra,
	}
}

// Host returns the normalized host of the signature.
func (s Signature) Host() string { return s.host }

// String returns a loggable form of the signature. The password is omitted.
func (s Signature) String() string {
	if s.extra == "" {
		return fmt.Sprintf("%s@%s%s", s.user, s.host, vhostPath(s.vhost))
	}
	return fmt.Sprintf("%s@%s%s?%s", s.user, s.host, vhostPath(s.vhost), s.extra)
}
