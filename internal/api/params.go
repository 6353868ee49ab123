package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 16

// params are the inputs shared by the data handlers, read from a JSON body
// on POST or the query string otherwise.
type params struct {
	TenantID        string `json:"tenant_id"`
	TeamID          string `json:"team_id"`
	WonOnly         bool   `json:"won_only"`
	CompareLastWeek bool   `json:"compare_last_week"`
	IncludeInactive bool   `json:"include_inactive"`
	SessionKey      string `json:"session_key"`
	Since           string `json:"since"`
}

func readParams(r *http.Request) (params, error) {
	var p params

	if r.Method == http.MethodPost {
		dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
		if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
			return p, &Error{Kind: KindValidation, Message: "request body must be a JSON object", Err: err}
		}
		return p, nil
	}

	q := r.URL.Query()
	p.TenantID = q.Get("tenant_id")
	p.TeamID = q.Get("team_id")
	p.SessionKey = q.Get("session_key")
	p.Since = q.Get("since")

	var err error
	if p.WonOnly, err = queryBool(q, "won_only"); err != nil {
		return p, err
	}
	if p.CompareLastWeek, err = queryBool(q, "compare_last_week"); err != nil {
		return p, err
	}
	if p.IncludeInactive, err = queryBool(q, "include_inactive"); err != nil {
		return p, err
	}

	return p, nil
}

func queryBool(q url.Values, name string) (bool, error) {
	value := q.Get(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, newError(KindValidation, fmt.Sprintf("%s must be a boolean", name))
	}
	return b, nil
}

// tenant resolves tenant_id against the caller's own tenant. An omitted id
// means the caller's tenant.
func (p params) tenant(own uuid.UUID) (uuid.UUID, error) {
	if p.TenantID == "" {
		return own, nil
	}
	id, err := uuid.Parse(p.TenantID)
	if err != nil {
		return uuid.Nil, newError(KindValidation, "tenant_id must be a UUID")
	}
	if id != own {
		return uuid.Nil, newError(KindAuth, "session does not belong to tenant")
	}
	return id, nil
}

func (p params) team() (*uuid.UUID, error) {
	if p.TeamID == "" {
		return nil, nil
	}
	id, err := uuid.Parse(p.TeamID)
	if err != nil {
		return nil, newError(KindValidation, "team_id must be a UUID")
	}
	return &id, nil
}
