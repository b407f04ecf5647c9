package identity

import (
	"encoding/json"

	"github.com/haileyok/didlog/peek"
)

// DidDoc is the subset of a resolved document callers usually look at.
type DidDoc struct {
	Context            json.RawMessage            `json:"@context"`
	Id                 string                     `json:"id"`
	VerificationMethod []DidDocVerificationMethod `json:"verificationMethod"`
	Authentication     []string                   `json:"authentication"`
	AssertionMethod    []string                   `json:"assertionMethod"`
	Service            []DidDocService            `json:"service"`
}

type DidDocVerificationMethod struct {
	Id                 string         `json:"id"`
	Type               string         `json:"type"`
	Controller         string         `json:"controller"`
	PublicKeyMultibase string         `json:"publicKeyMultibase,omitempty"`
	PublicKeyJwk       map[string]any `json:"publicKeyJwk,omitempty"`
}

type DidDocService struct {
	Id              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

type Resolution struct {
	Did      string
	Log      string
	Meta     *peek.Meta
	Document json.RawMessage
}

// Doc decodes the resolved document.
func (r *Resolution) Doc() (*DidDoc, error) {
	var doc DidDoc
	if err := json.Unmarshal(r.Document, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
