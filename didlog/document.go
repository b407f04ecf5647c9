package didlog

import (
	"encoding/json"
	"reflect"

	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/types"
)

var defaultContexts = []any{
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/multikey/v1",
	"https://w3id.org/security/jwk/v1",
}

const defaultKeyName = "key-01"

// buildDocument lays out a DID document whose verification methods are
// exactly the given keys. A key listed in both relationships is published
// once.
func buildDocument(did string, auth, assertion []*keys.VerificationKey) (map[string]any, error) {
	doc := map[string]any{
		"@context": defaultContexts,
		"id":       did,
	}

	var vms []any
	published := map[string]*keys.VerificationKey{}

	ref := func(k *keys.VerificationKey) (string, error) {
		if k == nil || k.Name == "" {
			return "", types.Errorf(types.KindInvalidInput, "verification key without a name")
		}

		if prev, ok := published[k.Name]; ok {
			if !sameKey(prev, k) {
				return "", types.Errorf(types.KindInvalidInput, "verification key name %q used for two different keys", k.Name)
			}
			return did + "#" + k.Name, nil
		}

		vm, err := verificationMethod(did, k)
		if err != nil {
			return "", err
		}

		published[k.Name] = k
		vms = append(vms, vm)

		return did + "#" + k.Name, nil
	}

	var authRefs, assertRefs []any
	for _, k := range auth {
		r, err := ref(k)
		if err != nil {
			return nil, err
		}
		authRefs = append(authRefs, r)
	}
	for _, k := range assertion {
		r, err := ref(k)
		if err != nil {
			return nil, err
		}
		assertRefs = append(assertRefs, r)
	}

	if len(vms) > 0 {
		doc["verificationMethod"] = vms
	}
	if len(authRefs) > 0 {
		doc["authentication"] = dedupeRefs(authRefs)
	}
	if len(assertRefs) > 0 {
		doc["assertionMethod"] = dedupeRefs(assertRefs)
	}

	return doc, nil
}

func verificationMethod(did string, k *keys.VerificationKey) (map[string]any, error) {
	vm := map[string]any{
		"id":         did + "#" + k.Name,
		"controller": did,
	}

	switch {
	case k.PublicKeyJWK != nil && k.PublicKeyMultibase == "":
		if _, ok := k.PublicKeyJWK["d"]; ok {
			return nil, types.Errorf(types.KindInvalidInput, "verification key %q contains private material", k.Name)
		}
		vm["type"] = "JsonWebKey2020"
		vm["publicKeyJwk"] = k.PublicKeyJWK
	case k.PublicKeyMultibase != "" && k.PublicKeyJWK == nil:
		if _, err := keys.PublicFromMultikey(k.PublicKeyMultibase); err != nil {
			return nil, types.Wrap(types.KindInvalidInput, err, "verification key %q", k.Name)
		}
		vm["type"] = "Multikey"
		vm["publicKeyMultibase"] = k.PublicKeyMultibase
	default:
		return nil, types.Errorf(types.KindInvalidInput, "verification key %q needs exactly one of a JWK or a multikey", k.Name)
	}

	return vm, nil
}

// deactivatedDocument keeps only the id and the @context of the last version.
func deactivatedDocument(did string, context json.RawMessage) map[string]any {
	doc := map[string]any{"id": did}
	if len(context) > 0 && string(context) != "null" {
		doc["@context"] = context
	}
	return doc
}

func sameKey(a, b *keys.VerificationKey) bool {
	return a.PublicKeyMultibase == b.PublicKeyMultibase && reflect.DeepEqual(a.PublicKeyJWK, b.PublicKeyJWK)
}

func dedupeRefs(refs []any) []any {
	seen := map[any]bool{}
	out := make([]any, 0, len(refs))
	for _, r := range refs {
		if seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}
