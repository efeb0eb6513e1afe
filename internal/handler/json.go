package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/shop-core/internal/domain/apperr"
	"github.com/xenking/shop-core/pkg/httpmiddleware"
)

var errMalformedBody = apperr.New(apperr.InvalidArgument, "malformed request body")

// field decodes the value of one object key.
type field func(d *jx.Decoder) error

// decodeBody reads a JSON object, dispatching known keys to fields and
// skipping the rest. An empty body decodes as an empty object.
func decodeBody(r *http.Request, fields map[string]field) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodySize)
	d := jx.Decode(body, 4096)
	if d.Next() == jx.Invalid {
		return nil
	}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		f, ok := fields[string(key)]
		if !ok {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		return f(d)
	})
	if err != nil {
		return errors.Wrap(errMalformedBody, err.Error())
	}
	return nil
}

func str(v *string) field {
	return func(d *jx.Decoder) (err error) {
		*v, err = d.Str()
		return err
	}
}

func integer(v *int, set *bool) field {
	return func(d *jx.Decoder) (err error) {
		*v, err = d.Int()
		if set != nil {
			*set = err == nil
		}
		return err
	}
}

func boolean(v *bool) field {
	return func(d *jx.Decoder) (err error) {
		*v, err = d.Bool()
		return err
	}
}

// money accepts "12.50" or 12.5.
func money(v *decimal.NullDecimal) field {
	return func(d *jx.Decoder) error {
		var raw string
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			raw = s
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			raw = n.String()
		default:
			return errors.New("amount must be a string or a number")
		}
		dec, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrap(err, "parse amount")
		}
		*v = decimal.NewNullDecimal(dec)
		return nil
	}
}

func strMap(v *map[string]string) field {
	return func(d *jx.Decoder) error {
		m := map[string]string{}
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			s, err := d.Str()
			m[string(key)] = s
			return err
		})
		*v = m
		return err
	}
}

// encMoney writes amounts as strings with two decimal places.
func encMoney(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	e.Str(v.StringFixed(2))
}

func encStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func encTime(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339))
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	httpmiddleware.WriteError(w, status, code, message)
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidQuantity, apperr.EmptyCart:
		return http.StatusUnprocessableEntity
	case apperr.InvalidArgument, apperr.SignatureMismatch:
		return http.StatusBadRequest
	case apperr.AlreadyVerified:
		return http.StatusOK
	case apperr.Conflict, apperr.ConstraintViolation, apperr.InsufficientInventory:
		return http.StatusConflict
	case apperr.OrderNumberExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a domain error to a response. Internal errors are logged
// and answered with a generic message.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	switch kind {
	case apperr.AlreadyVerified:
		writeJSON(w, status, func(e *jx.Encoder) {
			e.ObjStart()
			encStr(e, "status", "already_verified")
			e.ObjEnd()
		})
		return
	case apperr.Internal:
		zctx.From(ctx).Error("Request failed", zap.Error(err))
	default:
		zctx.From(ctx).Debug("Request rejected", zap.String("kind", kind.String()), zap.Error(err))
	}
	writeProblem(w, status, kind.String(), apperr.Message(err))
}
