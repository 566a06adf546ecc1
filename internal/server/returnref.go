package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/formgate/formgate/internal/payment/domain"
)

// The browser return carries an opaque reference to {form_id, order_id} so the
// return handler knows which order to reconcile. The reference is integrity
// hashed; it is still only a pointer, never a source of amounts or statuses.

// EncodeReturnRef builds the reference embedded in the success URL.
func EncodeReturnRef(secret string, formID int64, orderID snowflake.ID) string {
	ids := fmt.Sprintf("ids=%d|%s", formID, orderID)
	query := ids + "&hash=" + hashReturnRef(secret, ids)
	return base64.RawURLEncoding.EncodeToString([]byte(query))
}

func decodeReturnRef(secret, ref string) (int64, snowflake.ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(ref))
	if err != nil {
		return 0, 0, paymentdomain.ErrMalformedPayload
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return 0, 0, paymentdomain.ErrMalformedPayload
	}

	ids := values.Get("ids")
	if !hmac.Equal([]byte(hashReturnRef(secret, "ids="+ids)), []byte(values.Get("hash"))) {
		return 0, 0, paymentdomain.ErrUnauthenticated
	}

	formPart, orderPart, ok := strings.Cut(ids, "|")
	if !ok {
		return 0, 0, paymentdomain.ErrMalformedPayload
	}
	formID, err := strconv.ParseInt(formPart, 10, 64)
	if err != nil {
		return 0, 0, paymentdomain.ErrMalformedPayload
	}
	orderID, err := snowflake.ParseString(orderPart)
	if err != nil {
		return 0, 0, paymentdomain.ErrMalformedPayload
	}
	return formID, orderID, nil
}

func hashReturnRef(secret, ids string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ids))
	return hex.EncodeToString(mac.Sum(nil))
}
