package core

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type API string

const (
	APIHelix API = "helix"
	APITMI   API = "tmi"
)

type AuthMode int

const (
	AuthRequired AuthMode = iota
	AuthNone
)

// Envelope selects how a 2xx body maps onto the response type.
type Envelope int

const (
	// EnvelopeData decodes {"data": ..., "pagination": {"cursor": ...}, "total": ...}.
	EnvelopeData Envelope = iota
	// EnvelopeRaw decodes the whole body into the response type.
	EnvelopeRaw
	// EnvelopeNone ignores the body (204 endpoints).
	EnvelopeNone
)

const DefaultCursorParam = "after"

// Descriptor is the immutable wire contract of one endpoint. The type
// parameter binds it to exactly one response type.
type Descriptor[Res any] struct {
	API         API
	Method      string
	Path        string
	Scopes      []string
	Paginated   bool
	Auth        AuthMode
	Envelope    Envelope
	CursorParam string
}

func (d Descriptor[Res]) Endpoint() Endpoint {
	method := strings.ToUpper(strings.TrimSpace(d.Method))
	if method == "" {
		method = http.MethodGet
	}
	cursorParam := strings.TrimSpace(d.CursorParam)
	if cursorParam == "" {
		cursorParam = DefaultCursorParam
	}
	api := d.API
	if api == "" {
		api = APIHelix
	}
	return Endpoint{
		API:         api,
		Method:      method,
		Path:        strings.TrimPrefix(strings.TrimSpace(d.Path), "/"),
		Scopes:      append([]string(nil), d.Scopes...),
		Paginated:   d.Paginated,
		Auth:        d.Auth,
		Envelope:    d.Envelope,
		CursorParam: cursorParam,
	}
}

// Endpoint is the untyped view of a Descriptor used inside the engine.
type Endpoint struct {
	API         API
	Method      string
	Path        string
	Scopes      []string
	Paginated   bool
	Auth        AuthMode
	Envelope    Envelope
	CursorParam string
}

func (e Endpoint) Operation() string {
	return e.Method + " " + string(e.API) + "/" + e.Path
}

type Params struct {
	Path  map[string]string
	Query url.Values
	Body  any
}

func (p Params) clone() Params {
	out := Params{Body: p.Body}
	if len(p.Path) > 0 {
		out.Path = make(map[string]string, len(p.Path))
		for key, value := range p.Path {
			out.Path[key] = value
		}
	}
	out.Query = url.Values{}
	for key, values := range p.Query {
		out.Query[key] = append([]string(nil), values...)
	}
	return out
}

type Request[Res any] interface {
	Descriptor() Descriptor[Res]
	Params() Params
}

type Response[Res any] struct {
	Data       Res
	Cursor     *string
	Total      *int
	StatusCode int
	Headers    map[string]string
	RateLimit  RateLimitInfo
}

// QueryBuilder collects optional query parameters, skipping empty values.
type QueryBuilder struct {
	values url.Values
}

func NewQuery() *QueryBuilder {
	return &QueryBuilder{values: url.Values{}}
}

func (q *QueryBuilder) Set(key string, value string) *QueryBuilder {
	if strings.TrimSpace(value) != "" {
		q.values.Set(key, value)
	}
	return q
}

func (q *QueryBuilder) Add(key string, values ...string) *QueryBuilder {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			q.values.Add(key, value)
		}
	}
	return q
}

func (q *QueryBuilder) SetInt(key string, value int) *QueryBuilder {
	if value > 0 {
		q.values.Set(key, strconv.Itoa(value))
	}
	return q
}

func (q *QueryBuilder) Values() url.Values {
	return q.values
}

func renderPath(template string, params map[string]string) (string, error) {
	var b strings.Builder
	rest := template
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", NewError(KindInvalidRequest, template, "unterminated path placeholder")
		}
		name := rest[start+1 : start+end]
		value, ok := params[name]
		if !ok || strings.TrimSpace(value) == "" {
			return "", NewError(KindInvalidRequest, template, "missing path parameter "+name)
		}
		b.WriteString(rest[:start])
		b.WriteString(url.PathEscape(value))
		rest = rest[start+end+1:]
	}
	return b.String(), nil
}
