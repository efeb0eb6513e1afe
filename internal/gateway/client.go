// Package gateway is an HTTP client for the payment gateway's order API.
package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/payment"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

var _ payment.Gateway = (*Client)(nil)

// Config configures a Client.
type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Client creates gateway orders.
type Client struct {
	base   string
	keyID  string
	secret string
	http   *http.Client
	lg     *zap.Logger
}

// New creates a Client with an instrumented transport.
func New(cfg Config, lg *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("gateway key id and secret are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	var opts []otelhttp.Option
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}
	return &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:  cfg.KeyID,
		secret: cfg.KeySecret,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		lg: lg,
	}, nil
}

// Error is a non-2xx gateway response.
type Error struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return "gateway: " + http.StatusText(e.StatusCode)
	}
	return "gateway: " + e.Code + ": " + e.Description
}

// CreateOrder implements payment.Gateway. Amounts are sent in the currency's
// minor unit.
func (c *Client) CreateOrder(ctx context.Context, req payment.GatewayOrderRequest) (*payment.GatewayOrder, error) {
	body := encodeOrderRequest(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	httpReq.SetBasicAuth(c.keyID, c.secret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		gwErr := decodeError(resp.StatusCode, data)
		c.lg.Warn("Gateway rejected order",
			zap.Int("status", resp.StatusCode),
			zap.String("code", gwErr.Code),
			zap.String("receipt", req.Receipt),
		)
		return nil, gwErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	o, err := decodeOrder(data)
	if err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	if o.ID == "" {
		return nil, errors.New("gateway returned an order without id")
	}
	o.KeyID = c.keyID
	return o, nil
}

func encodeOrderRequest(req payment.GatewayOrderRequest) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(req.Amount.Shift(2).Round(0).IntPart())
	e.FieldStart("currency")
	e.Str(strings.ToUpper(req.Currency))
	e.FieldStart("receipt")
	e.Str(req.Receipt)
	if len(req.Notes) > 0 {
		e.FieldStart("notes")
		e.ObjStart()
		for k, v := range req.Notes {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
	e.ObjEnd()
	return e.Bytes()
}

func decodeOrder(data []byte) (*payment.GatewayOrder, error) {
	var o payment.GatewayOrder
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			o.ID, err = d.Str()
		case "amount":
			o.AmountMinor, err = d.Int64()
		case "currency":
			o.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// decodeError reads {"error": {"code": ..., "description": ...}}. Bodies in
// another shape leave the fields empty.
func decodeError(status int, data []byte) *Error {
	gwErr := &Error{StatusCode: status}
	_ = jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "code":
				gwErr.Code, err = d.Str()
			case "description":
				gwErr.Description, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		})
	})
	return gwErr
}
