package telegram

import (
	"strconv"
	"strings"

	"github.com/sakashimaa/paybot/internal/service"
)

// Telegram rejects callback data longer than 64 bytes.
const maxCallbackData = 64

const (
	checkPrefix    = "check_"
	checkSeqPrefix = "check#"
)

// EncodeCheck falls back to the local sequence id when the processor id is too long.
func EncodeCheck(action service.Action) string {
	data := checkPrefix + action.ProcessorID
	if len(data) <= maxCallbackData {
		return data
	}

	return checkSeqPrefix + strconv.FormatInt(action.SequenceID, 10)
}

// DecodeCheck returns the check reference understood by the engine: a
// processor id or "#<sequence id>".
func DecodeCheck(data string) (string, bool) {
	switch {
	case strings.HasPrefix(data, checkPrefix):
		ref := strings.TrimPrefix(data, checkPrefix)
		return ref, ref != ""
	case strings.HasPrefix(data, checkSeqPrefix):
		ref := strings.TrimPrefix(data, checkSeqPrefix)
		if _, err := strconv.ParseInt(ref, 10, 64); err != nil {
			return "", false
		}
		return "#" + ref, true
	default:
		return "", false
	}
}
