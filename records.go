package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// UserRecord is one row of a user CSV file. Export and import use the same
// columns so an exported list can be fed back to create-users.
type UserRecord struct {
	UserPrincipalName string
	DisplayName       string
	GivenName         string
	Surname           string
	JobTitle          string
	EmployeeID        string
	EmployeeType      string
	Department        string
	City              string
	State             string
	Country           string
	StreetAddress     string
	PostalCode        string
	MailNickname      string
	Password          string
	UsageLocation     string
	SkuIDs            [3]string
}

type userColumn struct {
	name  string
	field func(*UserRecord) *string
}

var userColumns = []userColumn{
	{"UserPrincipalName", func(u *UserRecord) *string { return &u.UserPrincipalName }},
	{"DisplayName", func(u *UserRecord) *string { return &u.DisplayName }},
	{"GivenName", func(u *UserRecord) *string { return &u.GivenName }},
	{"Surname", func(u *UserRecord) *string { return &u.Surname }},
	{"JobTitle", func(u *UserRecord) *string { return &u.JobTitle }},
	{"EmployeeId", func(u *UserRecord) *string { return &u.EmployeeID }},
	{"EmployeeType", func(u *UserRecord) *string { return &u.EmployeeType }},
	{"Department", func(u *UserRecord) *string { return &u.Department }},
	{"City", func(u *UserRecord) *string { return &u.City }},
	{"State", func(u *UserRecord) *string { return &u.State }},
	{"Country", func(u *UserRecord) *string { return &u.Country }},
	{"StreetAddress", func(u *UserRecord) *string { return &u.StreetAddress }},
	{"PostalCode", func(u *UserRecord) *string { return &u.PostalCode }},
	{"MailNickname", func(u *UserRecord) *string { return &u.MailNickname }},
	{"Password", func(u *UserRecord) *string { return &u.Password }},
	{"UsageLocation", func(u *UserRecord) *string { return &u.UsageLocation }},
	{"SkuId1", func(u *UserRecord) *string { return &u.SkuIDs[0] }},
	{"SkuId2", func(u *UserRecord) *string { return &u.SkuIDs[1] }},
	{"SkuId3", func(u *UserRecord) *string { return &u.SkuIDs[2] }},
}

// userHeader returns the column names in export order.
func userHeader() []string {
	header := make([]string, len(userColumns))
	for i, c := range userColumns {
		header[i] = c.name
	}
	return header
}

// userRow renders r in the order of userHeader.
func userRow(r UserRecord) []string {
	row := make([]string, len(userColumns))
	for i, c := range userColumns {
		row[i] = *c.field(&r)
	}
	return row
}

// ReadUserRecords loads a user CSV file. A header row is required and must
// contain UserPrincipalName; any other column may be omitted. Header names
// are matched case-insensitively and unknown columns are ignored. A leading
// UTF-8 or UTF-16 byte order mark is honoured.
func ReadUserRecords(path string) ([]UserRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("input file %s does not exist", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	return parseUserRecords(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
}

func parseUserRecords(r io.Reader) ([]UserRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("input file has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header row: %w", err)
	}

	byName := make(map[string]userColumn, len(userColumns))
	for _, c := range userColumns {
		byName[strings.ToLower(c.name)] = c
	}
	mapping := make([]*userColumn, len(header))
	hasUPN := false
	for i, h := range header {
		c, ok := byName[strings.ToLower(strings.TrimSpace(h))]
		if !ok {
			log.Debugf("Remark: ignoring unknown input column %q.", h)
			continue
		}
		mapping[i] = &c
		if c.name == "UserPrincipalName" {
			hasUPN = true
		}
	}
	if !hasUPN {
		return nil, errors.New("input file is missing the UserPrincipalName column")
	}

	var records []UserRecord
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}
		if blankRow(row) {
			continue
		}
		var rec UserRecord
		for i, value := range row {
			if i >= len(mapping) || mapping[i] == nil {
				continue
			}
			*mapping[i].field(&rec) = strings.TrimSpace(value)
		}
		records = append(records, rec)
	}
	return records, nil
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// skuIDs parses the non-empty SkuId columns.
func (r UserRecord) skuIDs() ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for i, raw := range r.SkuIDs {
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SkuId%d %q: %w", i+1, raw, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// createOptions are the command-level defaults applied to each row.
type createOptions struct {
	ForceChangePassword  bool
	DefaultUsageLocation string
}

// newUserFromRecord copies the present fields of r into a creation request.
// It reports whether the password was generated.
func newUserFromRecord(r UserRecord, opts createOptions) (NewUser, bool, error) {
	if r.DisplayName == "" {
		return NewUser{}, false, errors.New("missing DisplayName")
	}

	nickname := r.MailNickname
	if nickname == "" {
		nickname, _, _ = strings.Cut(r.UserPrincipalName, "@")
	}

	password := r.Password
	generated := false
	if password == "" {
		var err error
		password, err = GeneratePassword()
		if err != nil {
			return NewUser{}, false, err
		}
		generated = true
	}

	usageLocation := r.UsageLocation
	if usageLocation == "" {
		usageLocation = opts.DefaultUsageLocation
	}

	return NewUser{
		UserPrincipalName:   r.UserPrincipalName,
		DisplayName:         r.DisplayName,
		MailNickname:        nickname,
		Password:            password,
		ForceChangePassword: opts.ForceChangePassword,
		GivenName:           Some(r.GivenName),
		Surname:             Some(r.Surname),
		JobTitle:            Some(r.JobTitle),
		EmployeeID:          Some(r.EmployeeID),
		EmployeeType:        Some(r.EmployeeType),
		Department:          Some(r.Department),
		City:                Some(r.City),
		State:               Some(r.State),
		Country:             Some(r.Country),
		StreetAddress:       Some(r.StreetAddress),
		PostalCode:          Some(r.PostalCode),
		UsageLocation:       Some(usageLocation),
	}, generated, nil
}
