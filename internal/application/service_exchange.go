package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbusworks/console-identity-service/internal/domain"
	"github.com/nimbusworks/console-identity-service/internal/ports"
)

const userCrNameLength = 12

// ExchangeRegionToken swaps the caller's auth token for a region-scoped
// access token. The region identity and its private workspace are
// provisioned lazily on the first exchange into a region.
func (s *Service) ExchangeRegionToken(ctx context.Context, accountUID uuid.UUID, req RegionTokenRequest) (RegionTokenResponse, error) {
	account, err := s.accounts.GetByUID(ctx, accountUID)
	if err != nil {
		return RegionTokenResponse{}, err
	}

	regionUID, err := uuid.Parse(req.RegionUID)
	if err != nil {
		return RegionTokenResponse{}, fmt.Errorf("%w: invalid region_uid", domain.ErrInvalidInput)
	}
	region, err := s.regions.GetByUID(ctx, regionUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RegionTokenResponse{}, domain.ErrRegionNotFound
		}
		return RegionTokenResponse{}, err
	}

	identity, err := s.ensureRegionIdentity(ctx, account, region)
	if err != nil {
		return RegionTokenResponse{}, err
	}

	membership, err := s.resolveWorkspace(ctx, accountUID, region.UID, identity, req.WorkspaceID)
	if err != nil {
		return RegionTokenResponse{}, err
	}

	now := s.nowFn()
	claims := ports.RegionClaims{
		AccountUID:   account.UID,
		AccountID:    account.ID,
		RegionUID:    region.UID,
		UserCrUID:    identity.UserCrUID,
		UserCrName:   identity.UserCrName,
		WorkspaceUID: membership.WorkspaceUID,
		WorkspaceID:  membership.WorkspaceID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.cfg.RegionTokenTTL),
	}
	token, err := s.tokens.SignRegion(region.JWTSecret, claims)
	if err != nil {
		return RegionTokenResponse{}, fmt.Errorf("sign region token: %w", err)
	}

	return RegionTokenResponse{
		Token:        token,
		ExpiresIn:    int64(s.cfg.RegionTokenTTL.Seconds()),
		RegionDomain: region.Domain,
		UserCrName:   identity.UserCrName,
		WorkspaceID:  membership.WorkspaceID,
	}, nil
}

// ensureRegionIdentity provisions the per-region identity and its private
// workspace idempotently. The repository rereads on a lost insert race, so
// concurrent first exchanges all land on the same identity.
func (s *Service) ensureRegionIdentity(ctx context.Context, account domain.GlobalAccount, region domain.Region) (domain.RegionIdentity, error) {
	if identity, err := s.regionIdentities.Get(ctx, account.UID, region.UID); err == nil {
		return identity, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.RegionIdentity{}, err
	}

	crName, err := domain.GenerateID(userCrNameLength)
	if err != nil {
		return domain.RegionIdentity{}, err
	}
	now := s.nowFn()
	identity := domain.RegionIdentity{
		AccountUID: account.UID,
		RegionUID:  region.UID,
		UserCrUID:  uuid.New(),
		UserCrName: crName,
		CreatedAt:  now,
	}
	workspace := domain.Workspace{
		UID:         uuid.New(),
		ID:          "ns-" + crName,
		RegionUID:   region.UID,
		DisplayName: "private workspace",
		CreatedAt:   now,
	}
	membership := domain.WorkspaceMembership{
		AccountUID:   account.UID,
		WorkspaceUID: workspace.UID,
		WorkspaceID:  workspace.ID,
		RegionUID:    region.UID,
		Role:         domain.RoleOwner,
		Status:       domain.JoinStatusInWorkspace,
		IsPrivate:    true,
		CreatedAt:    now,
	}
	return s.regionIdentities.EnsureTx(ctx, identity, workspace, membership)
}

// resolveWorkspace picks the target workspace for the token. With no
// explicit workspace the private one is used. A workspace the caller has not
// actually joined is reported as not found rather than forbidden.
func (s *Service) resolveWorkspace(ctx context.Context, accountUID, regionUID uuid.UUID, identity domain.RegionIdentity, workspaceID string) (domain.WorkspaceMembership, error) {
	if workspaceID == "" {
		workspaceID = "ns-" + identity.UserCrName
	}
	membership, err := s.workspaces.GetMembership(ctx, accountUID, regionUID, workspaceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.WorkspaceMembership{}, domain.ErrWorkspaceNotFound
		}
		return domain.WorkspaceMembership{}, err
	}
	if membership.Status != domain.JoinStatusInWorkspace {
		return domain.WorkspaceMembership{}, domain.ErrWorkspaceNotFound
	}
	return membership, nil
}

// ListWorkspaces returns the caller's workspaces in one region, including
// pending invitations. A region the caller never exchanged into has no
// identity yet, so the list is empty rather than an error.
func (s *Service) ListWorkspaces(ctx context.Context, accountUID uuid.UUID, regionUID uuid.UUID) ([]WorkspaceItem, error) {
	if _, err := s.regions.GetByUID(ctx, regionUID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRegionNotFound
		}
		return nil, err
	}
	memberships, err := s.workspaces.ListMemberships(ctx, accountUID, regionUID)
	if err != nil {
		return nil, err
	}
	items := make([]WorkspaceItem, 0, len(memberships))
	for _, m := range memberships {
		items = append(items, WorkspaceItem{
			WorkspaceID: m.WorkspaceID,
			Role:        string(m.Role),
			Status:      string(m.Status),
			IsPrivate:   m.IsPrivate,
		})
	}
	return items, nil
}

// ValidateRegionToken checks a region token against the issuing region's
// secret. Used by the internal gRPC surface.
func (s *Service) ValidateRegionToken(ctx context.Context, regionUID uuid.UUID, token string) (ports.RegionClaims, error) {
	region, err := s.regions.GetByUID(ctx, regionUID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ports.RegionClaims{}, domain.ErrRegionNotFound
		}
		return ports.RegionClaims{}, err
	}
	claims, err := s.tokens.ParseRegion(region.JWTSecret, token)
	if err != nil {
		return ports.RegionClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !s.nowFn().Before(claims.ExpiresAt) {
		return ports.RegionClaims{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	}
	return claims, nil
}
