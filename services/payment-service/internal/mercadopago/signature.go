package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// signatureParts holds the ts and v1 fields of an x-signature header,
// e.g. "ts=1704908010,v1=618c85345248dd820d5fd456117c2ab2ef8eda45a0282ff693eac24131a5e839".
type signatureParts struct {
	Timestamp string
	V1        string
}

func parseSignatureHeader(header string) (signatureParts, bool) {
	var parts signatureParts
	for _, field := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			parts.Timestamp = strings.TrimSpace(v)
		case "v1":
			parts.V1 = strings.TrimSpace(v)
		}
	}
	return parts, parts.Timestamp != "" && parts.V1 != ""
}

// ValidSignature checks a webhook's x-signature header against the admin's
// webhook secret. The signed manifest is "id:<data.id>;request-id:<rid>;ts:<ts>;"
// with the data id lowercased, per the provider's webhook docs.
func ValidSignature(secret, dataID, requestID, header string) bool {
	parts, ok := parseSignatureHeader(header)
	if !ok {
		return false
	}

	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + parts.Timestamp + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(strings.ToLower(parts.V1)))
}
