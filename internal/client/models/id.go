package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/bizsync/internal/common"
	"github.com/dmitrijs2005/bizsync/internal/shared"
	"github.com/google/uuid"
)

// nowFn is replaced in tests.
var nowFn = time.Now

// NewLocalID returns a device-generated id of the form
// localrecord_<unix-millis>_<9 base36 chars>.
func NewLocalID() string {
	suffix, err := shared.RandBase36(9)
	if err != nil {
		suffix = strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	}
	return common.LocalIDPrefix + strconv.FormatInt(nowFn().UnixMilli(), 10) + "_" + suffix
}

// IsLocalID reports whether id was generated on the device and has not been
// confirmed by the server. This is the only place the prefix is checked.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, common.LocalIDPrefix)
}
