package archive

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/sells-group/congress-cli/internal/model"
)

// Archive file names, relative to a bill directory.
const (
	SourceFile    = "src.html.gz"
	TextPageFile  = "texts.html.gz"
	TextsDir      = "texts"
	EstimatesDir  = "cbos"
	VotesDir      = "votes"
	billDirDigits = 6
)

var (
	congressDirRe = regexp.MustCompile(`^[0-9]{1,3}$`)
	billDirRe     = regexp.MustCompile(`^([a-z]+(?:-[a-z]+)*)-([0-9]{1,6})$`)
	textFileRe    = regexp.MustCompile(`^([0-9]{2})\.(txt|pdf)\.gz$`)
	estimateRe    = regexp.MustCompile(`^([0-9]{2})\.pdf\.gz$`)
	voteFileRe    = regexp.MustCompile(`^(house|senate)-([0-9]{5})\.html\.gz$`)
)

// BillDir is a parsed bill directory name.
type BillDir struct {
	Name   string
	Type   model.BillType
	Number int
}

// Canonical renders the short-code form, e.g. "hr-000001".
func (b BillDir) Canonical() string {
	return CanonicalBillDir(b.Type, b.Number)
}

// CanonicalBillDir renders a bill directory name from its parts.
func CanonicalBillDir(t model.BillType, number int) string {
	return fmt.Sprintf("%s-%0*d", t, billDirDigits, number)
}

// less orders bill directories by type then number.
func (b BillDir) less(o BillDir) bool {
	if b.Type != o.Type {
		return b.Type < o.Type
	}
	return b.Number < o.Number
}

func parseCongressDir(name string) (int, bool) {
	if !congressDirRe.MatchString(name) {
		return 0, false
	}
	n, err := strconv.Atoi(name)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func parseBillDir(name string) (BillDir, bool) {
	m := billDirRe.FindStringSubmatch(name)
	if m == nil {
		return BillDir{}, false
	}
	bt, ok := model.ParseBillType(m[1])
	if !ok {
		return BillDir{}, false
	}
	n, err := strconv.Atoi(m[2])
	if err != nil || n <= 0 {
		return BillDir{}, false
	}
	return BillDir{Name: name, Type: bt, Number: n}, true
}

// ParseVoteSubID splits a vote sub-identifier such as "house-00050".
func ParseVoteSubID(sub string) (model.Chamber, int, bool) {
	m := voteFileRe.FindStringSubmatch(sub + ".html.gz")
	if m == nil {
		return "", 0, false
	}
	n, _ := strconv.Atoi(m[2])
	return model.Chamber(m[1]), n, true
}
