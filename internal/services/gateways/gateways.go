package gateways

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ivankudzin/payhooks/internal/domain/enums"
	"github.com/ivankudzin/payhooks/internal/domain/model"
	"github.com/ivankudzin/payhooks/internal/domain/rules"
	"github.com/ivankudzin/payhooks/internal/pkg/validate"
)

var (
	ErrUnknownGateway   = errors.New("unknown gateway")
	ErrMalformedPayload = errors.New("malformed payload")
)

type Gateway interface {
	Name() enums.Gateway
	// KeyHeader is the gateway specific header carrying the shared secret.
	KeyHeader() string
	Decode(body []byte, receivedAt time.Time) (model.Notification, error)
}

// fieldGateway decodes flat JSON notifications. Each logical field lists the
// payload keys to try in order; the first non-empty one wins.
type fieldGateway struct {
	name         enums.Gateway
	keyHeader    string
	statusKeys   []string
	refKeys      []string
	amountKeys   []string
	currencyKeys []string
	externalKeys []string
}

func CamPay() Gateway {
	return &fieldGateway{
		name:         enums.GatewayCamPay,
		keyHeader:    "x-campay-webhook-key",
		statusKeys:   []string{"status"},
		refKeys:      []string{"reference"},
		amountKeys:   []string{"amount"},
		currencyKeys: []string{"currency"},
		externalKeys: []string{"external_reference"},
	}
}

func Fapshi() Gateway {
	return &fieldGateway{
		name:         enums.GatewayFapshi,
		keyHeader:    "x-fapshi-webhook-key",
		statusKeys:   []string{"status", "state"},
		refKeys:      []string{"transId", "transactionId", "id"},
		amountKeys:   []string{"amount"},
		currencyKeys: []string{"currency"},
		externalKeys: []string{"externalId", "externalReference", "custom"},
	}
}

func (g *fieldGateway) Name() enums.Gateway {
	return g.name
}

func (g *fieldGateway) KeyHeader() string {
	return g.keyHeader
}

func (g *fieldGateway) Decode(body []byte, receivedAt time.Time) (model.Notification, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return model.Notification{}, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var fields map[string]any
	if err := decoder.Decode(&fields); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return model.Notification{}, fmt.Errorf("%w: body is not an object", ErrMalformedPayload)
	}

	amount, err := parseAmount(firstValue(fields, g.amountKeys))
	if err != nil {
		return model.Notification{}, fmt.Errorf("%w: amount: %v", ErrMalformedPayload, err)
	}

	rawStatus := firstString(fields, g.statusKeys)
	n := model.Notification{
		Gateway:           g.name,
		RawStatus:         rawStatus,
		Status:            rules.NormalizeStatus(rawStatus),
		Reference:         firstString(fields, g.refKeys),
		Amount:            amount,
		Currency:          strings.ToUpper(firstString(fields, g.currencyKeys)),
		ExternalReference: firstString(fields, g.externalKeys),
		ReceivedAt:        receivedAt.UTC(),
	}

	if err := validate.Struct(n); err != nil {
		return model.Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return n, nil
}

type Registry struct {
	byName map[enums.Gateway]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{byName: make(map[enums.Gateway]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			continue
		}
		r.byName[gw.Name()] = gw
	}
	return r
}

func (r *Registry) Lookup(name string) (Gateway, error) {
	gw, ok := r.byName[enums.Gateway(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, ErrUnknownGateway
	}
	return gw, nil
}

func (r *Registry) Names() []enums.Gateway {
	names := make([]enums.Gateway, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func firstValue(fields map[string]any, keys []string) any {
	for _, key := range keys {
		v, ok := fields[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func firstString(fields map[string]any, keys []string) string {
	switch v := firstValue(fields, keys).(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// parseAmount accepts JSON numbers and numeric strings. Fractional amounts
// are truncated toward zero.
func parseAmount(v any) (int64, error) {
	var raw string
	switch value := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		raw = value.String()
	case string:
		raw = strings.TrimSpace(value)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("out of range: %q", raw)
	}
	return int64(f), nil
}
