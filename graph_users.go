package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	log "github.com/sirupsen/logrus"
)

var userSelect = []string{
	"id", "accountEnabled", "userPrincipalName", "displayName", "givenName", "surname",
	"jobTitle", "employeeId", "employeeType", "department", "city", "state", "country",
	"streetAddress", "postalCode", "mailNickname", "usageLocation", "assignedLicenses",
}

// ListUsers pages through every user, optionally narrowed by an OData filter.
// Filters use advanced query mode, which Graph only allows with
// ConsistencyLevel: eventual and $count.
func (s *Session) ListUsers(ctx context.Context, filter string) ([]DirectoryUser, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	query := &users.UsersRequestBuilderGetQueryParameters{
		Select: userSelect,
		Top:    int32Ptr(s.pageSize),
	}
	options := &users.UsersRequestBuilderGetRequestConfiguration{QueryParameters: query}
	var headers *abstractions.RequestHeaders
	if filter != "" {
		query.Filter = strPtr(filter)
		query.Count = boolPtr(true)
		headers = abstractions.NewRequestHeaders()
		headers.Add("ConsistencyLevel", "eventual")
		options.Headers = headers
	}

	result, err := s.client.Users().Get(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", graphError(err))
	}

	iterator, err := msgraphcore.NewPageIterator[models.Userable](result, s.client.GetAdapter(), models.CreateUserCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("error creating user page iterator: %w", err)
	}
	if headers != nil {
		iterator.SetHeaders(headers)
	}

	var out []DirectoryUser
	err = iterator.Iterate(ctx, func(u models.Userable) bool {
		out = append(out, directoryUserFrom(u))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error paging users: %w", graphError(err))
	}
	return out, nil
}

func directoryUserFrom(u models.Userable) DirectoryUser {
	du := DirectoryUser{
		ID:             deref(u.GetId()),
		AccountEnabled: deref(u.GetAccountEnabled()),
		Record: UserRecord{
			UserPrincipalName: deref(u.GetUserPrincipalName()),
			DisplayName:       deref(u.GetDisplayName()),
			GivenName:         deref(u.GetGivenName()),
			Surname:           deref(u.GetSurname()),
			JobTitle:          deref(u.GetJobTitle()),
			EmployeeID:        deref(u.GetEmployeeId()),
			EmployeeType:      deref(u.GetEmployeeType()),
			Department:        deref(u.GetDepartment()),
			City:              deref(u.GetCity()),
			State:             deref(u.GetState()),
			Country:           deref(u.GetCountry()),
			StreetAddress:     deref(u.GetStreetAddress()),
			PostalCode:        deref(u.GetPostalCode()),
			MailNickname:      deref(u.GetMailNickname()),
			UsageLocation:     deref(u.GetUsageLocation()),
		},
	}
	for _, l := range u.GetAssignedLicenses() {
		if id := l.GetSkuId(); id != nil {
			du.AssignedSkuIDs = append(du.AssignedSkuIDs, id.String())
		}
	}
	for i := 0; i < len(du.Record.SkuIDs) && i < len(du.AssignedSkuIDs); i++ {
		du.Record.SkuIDs[i] = du.AssignedSkuIDs[i]
	}
	if extra := len(du.AssignedSkuIDs) - len(du.Record.SkuIDs); extra > 0 {
		log.WithField("user", du.Record.UserPrincipalName).
			Warnf("%d licenses beyond SkuId%d are not exported: %s", extra, len(du.Record.SkuIDs), joinList(du.AssignedSkuIDs[len(du.Record.SkuIDs):]))
	}
	return du
}

// CreateUser creates an enabled account and returns its object id. Optional
// fields that are absent are left out of the request body.
func (s *Session) CreateUser(ctx context.Context, nu NewUser) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}

	user := models.NewUser()
	user.SetAccountEnabled(boolPtr(true))
	user.SetUserPrincipalName(strPtr(nu.UserPrincipalName))
	user.SetDisplayName(strPtr(nu.DisplayName))
	user.SetMailNickname(strPtr(nu.MailNickname))

	profile := models.NewPasswordProfile()
	profile.SetPassword(strPtr(nu.Password))
	profile.SetForceChangePasswordNextSignIn(boolPtr(nu.ForceChangePassword))
	user.SetPasswordProfile(profile)

	optionals := []struct {
		value Optional
		set   func(*string)
	}{
		{nu.GivenName, user.SetGivenName},
		{nu.Surname, user.SetSurname},
		{nu.JobTitle, user.SetJobTitle},
		{nu.EmployeeID, user.SetEmployeeId},
		{nu.EmployeeType, user.SetEmployeeType},
		{nu.Department, user.SetDepartment},
		{nu.City, user.SetCity},
		{nu.State, user.SetState},
		{nu.Country, user.SetCountry},
		{nu.StreetAddress, user.SetStreetAddress},
		{nu.PostalCode, user.SetPostalCode},
		{nu.UsageLocation, user.SetUsageLocation},
	}
	for _, o := range optionals {
		if o.value.Present() {
			o.set(o.value.Ptr())
		}
	}

	created, err := s.client.Users().Post(ctx, user, nil)
	if err != nil {
		return "", graphError(err)
	}
	return deref(created.GetId()), nil
}

// DeleteUser soft-deletes a user. id may be an object id or a UPN.
func (s *Session) DeleteUser(ctx context.Context, id string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return graphError(s.client.Users().ByUserId(id).Delete(ctx, nil))
}

// AssignLicense adds the given SKUs to a user without removing any.
func (s *Session) AssignLicense(ctx context.Context, userID string, skuIDs []uuid.UUID) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	licenses := make([]models.AssignedLicenseable, 0, len(skuIDs))
	for _, id := range skuIDs {
		license := models.NewAssignedLicense()
		license.SetSkuId(&id)
		licenses = append(licenses, license)
	}
	body := users.NewItemAssignLicensePostRequestBody()
	body.SetAddLicenses(licenses)
	body.SetRemoveLicenses([]uuid.UUID{})

	_, err := s.client.Users().ByUserId(userID).AssignLicense().Post(ctx, body, nil)
	return graphError(err)
}

// IssueTemporaryAccessPass creates a temporary access pass method for a user
// and returns the one-time code, which Graph only reveals on creation.
func (s *Session) IssueTemporaryAccessPass(ctx context.Context, userID string, opts TAPOptions) (TemporaryAccessPass, error) {
	if err := s.wait(ctx); err != nil {
		return TemporaryAccessPass{}, err
	}

	method := models.NewTemporaryAccessPassAuthenticationMethod()
	if opts.LifetimeInMinutes > 0 {
		method.SetLifetimeInMinutes(&opts.LifetimeInMinutes)
	}
	method.SetIsUsableOnce(boolPtr(opts.IsUsableOnce))
	if !opts.Start.IsZero() {
		method.SetStartDateTime(&opts.Start)
	}

	created, err := s.client.Users().ByUserId(userID).Authentication().TemporaryAccessPassMethods().Post(ctx, method, nil)
	if err != nil {
		return TemporaryAccessPass{}, graphError(err)
	}
	return TemporaryAccessPass{
		Code:              deref(created.GetTemporaryAccessPass()),
		StartDateTime:     deref(created.GetStartDateTime()),
		LifetimeInMinutes: deref(created.GetLifetimeInMinutes()),
		IsUsableOnce:      deref(created.GetIsUsableOnce()),
	}, nil
}
