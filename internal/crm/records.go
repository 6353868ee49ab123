package crm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfeidau/salesboard/internal/models"
)

// Properties requested for each object type.
var (
	dealProperties     = []string{"dealname", "amount", "dealstage", "closedate", "hs_lastmodifieddate", "hubspot_owner_id"}
	activityProperties = []string{"hs_timestamp", "hubspot_owner_id"}
)

// Owner is a CRM owner (sales rep) as returned by the owners endpoint.
type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	UserID    int64  `json:"userId"`
	Archived  bool   `json:"archived"`
}

// Name joins the owner's first and last name.
func (o Owner) Name() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}

// TokenInfo is the introspection result for an access token.
type TokenInfo struct {
	HubID     int64  `json:"hub_id"`
	HubDomain string `json:"hub_domain"`
	User      string `json:"user"`
	UserID    int64  `json:"user_id"`
	ExpiresIn int    `json:"expires_in"`
}

type page struct {
	Results *[]json.RawMessage `json:"results"`
	Paging  *struct {
		Next *struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (p page) nextCursor() string {
	if p.Paging == nil || p.Paging.Next == nil {
		return ""
	}
	return p.Paging.Next.After
}

type object struct {
	ID         string             `json:"id"`
	Properties map[string]*string `json:"properties"`
}

func (o object) prop(name string) string {
	if v, ok := o.Properties[name]; ok && v != nil {
		return strings.TrimSpace(*v)
	}
	return ""
}

func decodeObject(raw json.RawMessage) (object, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return obj, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if obj.ID == "" {
		return obj, fmt.Errorf("%w: object without id", ErrUnrecognizedShape)
	}
	if obj.Properties == nil {
		return obj, fmt.Errorf("%w: object %s without properties", ErrUnrecognizedShape, obj.ID)
	}
	return obj, nil
}

func parseOwner(raw json.RawMessage) (Owner, error) {
	var owner Owner
	if err := json.Unmarshal(raw, &owner); err != nil {
		return owner, fmt.Errorf("%w: %v", ErrUnrecognizedShape, err)
	}
	if owner.ID == "" {
		return owner, fmt.Errorf("%w: owner without id", ErrUnrecognizedShape)
	}
	return owner, nil
}

func parseDeal(raw json.RawMessage) (models.Deal, error) {
	obj, err := decodeObject(raw)
	if err != nil {
		return models.Deal{}, err
	}

	deal := models.Deal{
		CRMDealID: obj.ID,
		OwnerID:   obj.prop("hubspot_owner_id"),
		Name:      obj.prop("dealname"),
		Stage:     obj.prop("dealstage"),
	}

	if amount := obj.prop("amount"); amount != "" {
		deal.Amount, err = strconv.ParseFloat(amount, 64)
		if err != nil {
			return deal, fmt.Errorf("%w: deal %s amount %q", ErrUnrecognizedShape, obj.ID, amount)
		}
	}

	if deal.CloseDate, err = parseOptionalTime(obj.prop("closedate")); err != nil {
		return deal, fmt.Errorf("%w: deal %s closedate: %v", ErrUnrecognizedShape, obj.ID, err)
	}
	if deal.LastModifiedAt, err = parseOptionalTime(obj.prop("hs_lastmodifieddate")); err != nil {
		return deal, fmt.Errorf("%w: deal %s hs_lastmodifieddate: %v", ErrUnrecognizedShape, obj.ID, err)
	}

	return deal, nil
}

func parseActivity(kind models.ActivityKind) func(json.RawMessage) (models.Activity, error) {
	return func(raw json.RawMessage) (models.Activity, error) {
		obj, err := decodeObject(raw)
		if err != nil {
			return models.Activity{}, err
		}

		ts, err := parseOptionalTime(obj.prop("hs_timestamp"))
		if err != nil {
			return models.Activity{}, fmt.Errorf("%w: %s %s hs_timestamp: %v", ErrUnrecognizedShape, kind, obj.ID, err)
		}
		if ts == nil {
			return models.Activity{}, fmt.Errorf("%w: %s %s without hs_timestamp", ErrUnrecognizedShape, kind, obj.ID)
		}

		return models.Activity{
			ID:        obj.ID,
			Kind:      kind,
			OwnerID:   obj.prop("hubspot_owner_id"),
			Timestamp: *ts,
		}, nil
	}
}

// parseOptionalTime accepts RFC 3339 timestamps, plain dates and epoch milliseconds.
func parseOptionalTime(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}

	return nil, fmt.Errorf("unparseable time %q", value)
}
