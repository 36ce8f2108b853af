package persist

import (
	"bytes"
	"encoding/json"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
)

// EncodeSnapshot serializes docs as a pretty-printed (two-space indented)
// JSON array, with each document's fields emitted in canonical order:
// "id" first, then all other fields lexicographically, then "createdAt",
// then "updatedAt" (spec §3, §6).
//
// This is hand-rolled rather than delegated to a corpus library because
// none of the retrieved dependencies offer order-preserving *plain* JSON
// object encoding: mongo-driver/bson's JSON support only produces MongoDB
// Extended JSON (wrapping numbers as {"$numberDouble": ...} etc.), which
// would not round-trip as the documented on-disk format.
func EncodeSnapshot(docs []bson.M) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, d := range docs {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		if err := encodeOrderedObject(&buf, d, "  "); err != nil {
			return nil, err
		}
	}
	if len(docs) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return pretty.Bytes(), nil
}

// encodeOrderedObject writes d as a JSON object honoring canonical field
// order. Nested documents are ordered only by the same canonical rule at
// the top level is required by spec §3; nested values use json.Marshal's
// native map ordering (Go's encoding/json already sorts map keys), which is
// deterministic and is not subject to the id/createdAt/updatedAt rule.
func encodeOrderedObject(buf *bytes.Buffer, d bson.M, indent string) error {
	keys := orderedKeys(d)
	buf.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			buf.WriteString(",")
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return err
		}
		vb, err := json.Marshal(d[k])
		if err != nil {
			return err
		}
		buf.Write(kb)
		buf.WriteString(":")
		buf.Write(vb)
	}
	buf.WriteString("}")
	return nil
}

func orderedKeys(d bson.M) []string {
	var mid []string
	for k := range d {
		switch k {
		case "id", "createdAt", "updatedAt":
			continue
		default:
			mid = append(mid, k)
		}
	}
	sort.Strings(mid)

	keys := make([]string, 0, len(d))
	if _, ok := d["id"]; ok {
		keys = append(keys, "id")
	}
	keys = append(keys, mid...)
	if _, ok := d["createdAt"]; ok {
		keys = append(keys, "createdAt")
	}
	if _, ok := d["updatedAt"]; ok {
		keys = append(keys, "updatedAt")
	}
	return keys
}

// DecodeSnapshot parses a previously written snapshot file back into
// documents.
func DecodeSnapshot(data []byte) ([]bson.M, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	docs := make([]bson.M, len(raw))
	for i, m := range raw {
		docs[i] = bson.M(m)
	}
	return docs, nil
}
