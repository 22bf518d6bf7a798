// Package gateway serves the ingest handler over plain HTTP, playing the part
// API Gateway plays in a deployment.
package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	logging "github.com/ipfs/go-log/v2"

	"traffic-logger/internal/models"
)

var log = logging.Logger("gateway")

const maxBodyBytes = 6 << 20

// EnvelopeHandler is the function a deployment would invoke per request.
type EnvelopeHandler interface {
	Handle(ctx context.Context, env models.Envelope) (events.APIGatewayProxyResponse, error)
}

type Gateway struct {
	handler EnvelopeHandler
}

func New(h EnvelopeHandler) *Gateway {
	return &Gateway{handler: h}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Amz-Date, X-Amz-Security-Token")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	resp, err := g.handler.Handle(r.Context(), EnvelopeFromRequest(r, body))
	if err != nil {
		log.Errorw("handler failed", "err", err)
		http.Error(w, "internal error", http.StatusBadGateway)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

// EnvelopeFromRequest builds the envelope API Gateway would deliver for r.
// An empty body arrives as JSON null.
func EnvelopeFromRequest(r *http.Request, body []byte) models.Envelope {
	env := models.Envelope{Body: models.DecodedBody(json.RawMessage("null"))}
	if len(body) > 0 {
		env.Body = models.RawBody(string(body))
	}

	sourceIP := clientIP(r)
	userAgent := r.UserAgent()
	identity := &models.Identity{SourceIP: &sourceIP}
	if userAgent != "" {
		identity.UserAgent = &userAgent
	}
	env.RequestContext = &models.RequestContext{Identity: identity}
	return env
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
