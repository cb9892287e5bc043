package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var gatewayTracer = otel.Tracer("clinic.internal.payment.gateway")

// HTTPGateway posts authorizations to an external processor as JSON.
type HTTPGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPGateway(baseURL, apiKey string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient overrides the client used to reach the processor.
func (g *HTTPGateway) WithHTTPClient(client *http.Client) *HTTPGateway {
	if client != nil {
		g.httpClient = client
	}
	return g
}

type authorizeBody struct {
	IdempotencyKey string      `json:"idempotency_key"`
	ReferenceID    string      `json:"reference_id"`
	AppointmentID  string      `json:"appointment_id"`
	Amount         moneyAmount `json:"amount"`
	Method         string      `json:"method"`
}

type moneyAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type authorizeResponse struct {
	Approved      bool   `json:"approved"`
	TransactionID string `json:"transaction_id"`
	DeclineReason string `json:"decline_reason"`
}

func (g *HTTPGateway) Authorize(ctx context.Context, req AuthorizationRequest) (Authorization, error) {
	ctx, span := gatewayTracer.Start(ctx, "payment.gateway.Authorize")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.payment_id", req.PaymentID.String()),
		attribute.String("clinic.amount", req.Amount.StringFixed(2)),
	)

	reqBody, err := json.Marshal(authorizeBody{
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.PaymentID.String(),
		AppointmentID:  req.AppointmentID.String(),
		Amount:         moneyAmount{Value: req.Amount.StringFixed(2), Currency: req.Currency},
		Method:         req.Method,
	})
	if err != nil {
		return Authorization{}, fmt.Errorf("payment: gateway payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/authorizations", bytes.NewReader(reqBody))
	if err != nil {
		return Authorization{}, fmt.Errorf("payment: gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return Authorization{}, fmt.Errorf("payment: gateway http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("payment: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		return Authorization{}, err
	}

	var parsed authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Authorization{}, fmt.Errorf("payment: gateway decode: %w", err)
	}

	span.SetAttributes(attribute.Bool("clinic.approved", parsed.Approved))
	return Authorization{
		Approved:      parsed.Approved,
		TransactionID: parsed.TransactionID,
		Reason:        parsed.DeclineReason,
	}, nil
}
