package main

import (
	"context"
	"fmt"

	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"github.com/microsoftgraph/msgraph-sdk-go/directory"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

// ListDeletedUsers returns the users sitting in the deleted items container.
func (s *Session) ListDeletedUsers(ctx context.Context) ([]DeletedPrincipal, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	options := &directory.DeletedItemsGraphUserRequestBuilderGetRequestConfiguration{
		QueryParameters: &directory.DeletedItemsGraphUserRequestBuilderGetQueryParameters{
			Select: []string{"id", "userPrincipalName", "deletedDateTime"},
			Top:    int32Ptr(s.pageSize),
		},
	}
	result, err := s.client.Directory().DeletedItems().GraphUser().Get(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("error listing deleted users: %w", graphError(err))
	}

	iterator, err := msgraphcore.NewPageIterator[models.Userable](result, s.client.GetAdapter(), models.CreateUserCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("error creating deleted user page iterator: %w", err)
	}

	var out []DeletedPrincipal
	err = iterator.Iterate(ctx, func(u models.Userable) bool {
		out = append(out, DeletedPrincipal{
			ID:                deref(u.GetId()),
			UserPrincipalName: deref(u.GetUserPrincipalName()),
			DeletedDateTime:   deref(u.GetDeletedDateTime()),
		})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error paging deleted users: %w", graphError(err))
	}
	return out, nil
}

// PurgeDeletedUser permanently removes a soft-deleted object.
func (s *Session) PurgeDeletedUser(ctx context.Context, id string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	return graphError(s.client.Directory().DeletedItems().ByDirectoryObjectId(id).Delete(ctx, nil))
}

// ListSubscribedSkus returns the tenant's license subscriptions.
func (s *Session) ListSubscribedSkus(ctx context.Context) ([]LicenseSku, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	result, err := s.client.SubscribedSkus().Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error listing subscribed skus: %w", graphError(err))
	}

	iterator, err := msgraphcore.NewPageIterator[models.SubscribedSkuable](result, s.client.GetAdapter(), models.CreateSubscribedSkuCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, fmt.Errorf("error creating sku page iterator: %w", err)
	}

	var out []LicenseSku
	err = iterator.Iterate(ctx, func(sku models.SubscribedSkuable) bool {
		ls := LicenseSku{
			SkuPartNumber: deref(sku.GetSkuPartNumber()),
			ConsumedUnits: deref(sku.GetConsumedUnits()),
		}
		if id := sku.GetSkuId(); id != nil {
			ls.SkuID = id.String()
		}
		if units := sku.GetPrepaidUnits(); units != nil {
			ls.EnabledUnits = deref(units.GetEnabled())
		}
		out = append(out, ls)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("error paging subscribed skus: %w", graphError(err))
	}
	return out, nil
}
