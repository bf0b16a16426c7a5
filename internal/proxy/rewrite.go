package proxy

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"

	"ppcgate/internal/campaign"
	"ppcgate/internal/gate"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
	"ppcgate/internal/telemetry"
)

// HeaderName is set on rewritten responses.
const HeaderName = "X-Ppcgate"

// Outcome describes what happened to one response.
type Outcome struct {
	Open     bool
	Campaign bool
	Cached   bool
	Report   inject.Report
}

// RewriterConfig wires a Rewriter.
type RewriterConfig struct {
	HomePath string
	Pipeline *inject.Pipeline
	Profiles *profile.Store
	Cache    *rewriteCache
	Logger   logrus.FieldLogger
	Tracer   trace.Tracer
	MaxBody  int64
}

// Rewriter applies the gate and the injection pipeline to upstream HTML.
type Rewriter struct {
	homePath string
	pipeline *inject.Pipeline
	profiles *profile.Store
	cache    *rewriteCache
	logger   logrus.FieldLogger
	tracer   trace.Tracer
	maxBody  int64
}

func NewRewriter(cfg RewriterConfig) *Rewriter {
	if cfg.Pipeline == nil {
		cfg.Pipeline = DefaultPipeline()
	}
	if cfg.Profiles == nil {
		cfg.Profiles, _ = profile.NewStore("", cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = telemetry.Tracer()
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}
	return &Rewriter{
		homePath: cfg.HomePath,
		pipeline: cfg.Pipeline,
		profiles: cfg.Profiles,
		cache:    cfg.Cache,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
		maxBody:  cfg.MaxBody,
	}
}

func (rw *Rewriter) gate(p *profile.Profile) gate.FrontPage {
	return gate.NewFrontPage(rw.homePath, p.HomeClass)
}

// Candidate reports whether r can produce a response the gate may open for.
// Other responses are streamed through without buffering.
func (rw *Rewriter) Candidate(r *http.Request) bool {
	return rw.gate(rw.profiles.Current()).Matches(r)
}

// Bytes rewrites one HTML document. A closed gate returns nil output. An
// injector failure still returns the document with the other injectors
// applied, together with the error.
func (rw *Rewriter) Bytes(ctx context.Context, r *http.Request, body []byte) ([]byte, Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := rw.tracer.Start(ctx, "ppcgate.rewrite")
	defer span.End()

	prof := rw.profiles.Current()
	var oc Outcome
	if r != nil && r.URL != nil {
		oc.Campaign = campaign.Detect(r.URL.Query(), prof.ExtraCampaigns...)
	}
	key := cacheKey(body, oc.Campaign, rw.profiles.Revision())
	if data, cached, ok := rw.cache.Select(key); ok {
		cached.Cached = true
		setSpanOutcome(span, cached)
		if !cached.Open {
			return nil, cached, nil
		}
		return data, cached, nil
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse")
		return nil, oc, fmt.Errorf("parse upstream html: %w", err)
	}
	page := gate.NewPage(r, doc)
	oc.Open = rw.gate(prof).Open(page)
	if !oc.Open {
		rw.cache.Store(key, nil, oc)
		setSpanOutcome(span, oc)
		return nil, oc, nil
	}
	if oc.Campaign {
		campaign.Mark(page.Body, prof.HomeClass)
	}
	rep, applyErr := rw.pipeline.Apply(doc, inject.Context{Page: page, Campaign: oc.Campaign, Profile: prof})
	oc.Report = rep
	if applyErr != nil {
		span.RecordError(applyErr)
		span.SetStatus(codes.Error, "inject")
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 8<<10)
	if err := html.Render(&buf, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
		return nil, oc, fmt.Errorf("render rewritten html: %w", err)
	}
	if applyErr == nil {
		rw.cache.Store(key, buf.Bytes(), oc)
	}
	setSpanOutcome(span, oc)
	return buf.Bytes(), oc, applyErr
}

func setSpanOutcome(span trace.Span, oc Outcome) {
	span.SetAttributes(
		attribute.Bool("gate.open", oc.Open),
		attribute.Bool("campaign", oc.Campaign),
		attribute.Bool("cache.hit", oc.Cached),
		attribute.Int("injected", len(oc.Report.Injected)),
	)
}

// Response rewrites an upstream response in place. It is the reverse proxy's
// ModifyResponse hook. Anything that cannot be rewritten is passed through
// unchanged; only a failed body read is returned as an error.
func (rw *Rewriter) Response(resp *http.Response) error {
	if resp.Request == nil {
		return nil
	}
	req := inbound(resp.Request)
	if !rw.Candidate(req) {
		return nil
	}
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if resp.StatusCode != http.StatusOK || !isHTML(resp.Header) {
		if encoding == "gzip" && !clientAcceptsGzip(req) {
			return streamGunzip(resp)
		}
		return nil
	}
	switch encoding {
	case "", "identity", "gzip":
	default:
		rw.logger.WithField("encoding", encoding).Debug("front page left as is: unsupported content encoding")
		return nil
	}

	orig := resp.Body
	raw, err := io.ReadAll(io.LimitReader(orig, rw.maxBody+1))
	if err != nil {
		orig.Close()
		return fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(raw)) > rw.maxBody {
		rw.logger.WithField("limit", rw.maxBody).Warn("front page left as is: body too large")
		resp.Body = readCloser{io.MultiReader(bytes.NewReader(raw), orig), orig}
		if encoding == "gzip" && !clientAcceptsGzip(req) {
			return streamGunzip(resp)
		}
		return nil
	}
	orig.Close()

	var plain []byte
	passThrough := func() {
		resp.Body = io.NopCloser(bytes.NewReader(raw))
		if encoding != "gzip" || clientAcceptsGzip(req) {
			return
		}
		if plain != nil {
			setBody(resp, plain)
			resp.Header.Del("Content-Encoding")
			return
		}
		// Decoded size over the limit: stream it instead.
		if err := streamGunzip(resp); err != nil {
			rw.logger.WithError(err).Warn("gzip body passed through undecoded")
			resp.Body = io.NopCloser(bytes.NewReader(raw))
		}
	}

	plain = raw
	if encoding == "gzip" {
		plain, err = gunzip(raw, rw.maxBody)
		if err != nil {
			rw.logger.WithError(err).Warn("front page left as is: gzip decode failed")
			passThrough()
			return nil
		}
	}

	out, oc, err := rw.Bytes(req.Context(), req, plain)
	entry := rw.logger.WithFields(logrus.Fields{
		"url":      req.URL.String(),
		"open":     oc.Open,
		"campaign": oc.Campaign,
		"cached":   oc.Cached,
	})
	if err != nil {
		entry.WithError(err).Warn("rewrite failed")
	}
	if out == nil {
		passThrough()
		return nil
	}
	entry.WithFields(logrus.Fields{
		"injected": len(oc.Report.Injected),
		"present":  len(oc.Report.Present),
	}).Debug("front page rewritten")

	setBody(resp, out)
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("ETag")
	if oc.Campaign {
		resp.Header.Set(HeaderName, "campaign")
	} else {
		resp.Header.Set(HeaderName, "organic")
	}
	return nil
}

func setBody(resp *http.Response, b []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(b))
	resp.ContentLength = int64(len(b))
	resp.Uncompressed = false
	resp.Header.Set("Content-Length", strconv.Itoa(len(b)))
}

type inboundKey struct{}

// withInbound attaches the client request to the outbound one, so the
// response hook sees the path and headers the client actually sent.
func withInbound(out, in *http.Request) *http.Request {
	return out.WithContext(context.WithValue(out.Context(), inboundKey{}, in))
}

func inbound(out *http.Request) *http.Request {
	if in, ok := out.Context().Value(inboundKey{}).(*http.Request); ok && in != nil {
		return in
	}
	return out
}

func clientAcceptsGzip(in *http.Request) bool {
	for _, part := range strings.Split(in.Header.Get("Accept-Encoding"), ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.TrimSpace(name)
		if !strings.EqualFold(name, "gzip") && name != "*" {
			continue
		}
		if q, found := strings.CutPrefix(strings.ReplaceAll(params, " ", ""), "q="); found {
			if f, err := strconv.ParseFloat(q, 64); err == nil && f == 0 {
				continue
			}
		}
		return true
	}
	return false
}

type readCloser struct {
	io.Reader
	io.Closer
}

func isHTML(h http.Header) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// streamGunzip decodes a gzip body on the fly for a client that never asked
// for gzip. Only candidate requests get gzip forced upstream.
func streamGunzip(resp *http.Response) error {
	zr, err := gzip.NewReader(resp.Body)
	if err != nil {
		if err == io.EOF {
			resp.Header.Del("Content-Encoding")
			return nil
		}
		return fmt.Errorf("gzip: %w", err)
	}
	resp.Body = readCloser{zr, resp.Body}
	resp.ContentLength = -1
	resp.Uncompressed = true
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	return nil
}

func gunzip(b []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if int64(len(out)) > limit {
		return nil, fmt.Errorf("gzip: decoded body exceeds %d bytes", limit)
	}
	return out, nil
}
