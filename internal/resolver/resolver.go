// Package resolver reconstructs entities from the ledger: it queries the
// index, fetches and caches payload bodies, and decodes them.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"ardrive-go/internal/ardrive"
	"ardrive-go/internal/arfs"
	"ardrive-go/internal/gql"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
)

// Resolver reads entity versions from the ledger.
type Resolver struct {
	client  *gql.Client
	gateway ardrive.Gateway
	vault   ardrive.Vault
	codec   *arfs.Codec
	logger  ardrive.Logger
}

// New creates a resolver. vault may be nil, which disables body caching.
func New(client *gql.Client, gateway ardrive.Gateway, vault ardrive.Vault, codec *arfs.Codec, logger ardrive.Logger) *Resolver {
	if logger == nil {
		logger = ardrive.NewNopLogger()
	}
	return &Resolver{client: client, gateway: gateway, vault: vault, codec: codec, logger: logger}
}

// GetEntity returns the latest version of the entity of the given kind and ID
// signed by owner. Latest means greatest Unix-Time; among equal times the
// later edge wins. A version that cannot be decrypted is returned as an
// invalid-password sentinel; malformed versions are skipped.
func (r *Resolver) GetEntity(ctx context.Context, kind arfs.EntityType, id, owner string, driveKey *keys.DriveKey) (arfs.Entity, error) {
	req := gql.NewRequest(
		gql.Tag(arfs.TagEntityType, string(kind)),
		gql.Tag(arfs.IDTag(kind), id),
	).WithOwner(owner)

	edges, err := r.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("querying %s %s: %w", kind, id, err)
	}
	edges = gql.DedupeEdges(edges)

	for _, i := range latestFirst(edges) {
		e, err := r.decodeEdge(ctx, edges[i], driveKey)
		if err != nil {
			if skippable(err) {
				r.logger.Warn("skipping malformed entity version", "tx", edges[i].TxID, "error", err)
				continue
			}
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("%s %s: %w", kind, id, ardrive.ErrNotFound)
}

// GetAllEntities returns every version of every entity of the given kind in
// driveID, in edge order, from sinceHeight minus the safety margin. On a
// gateway outage it returns the entities decoded so far together with an
// *ardrive.GatewayUnavailableError carrying the resume cursor.
func (r *Resolver) GetAllEntities(ctx context.Context, kind arfs.EntityType, driveID, owner string, sinceHeight int64, driveKey *keys.DriveKey) ([]arfs.Entity, error) {
	req := gql.NewRequest(
		gql.Tag(arfs.TagEntityType, string(kind)),
		gql.Tag(arfs.TagDriveID, driveID),
	).WithOwner(owner).WithSinceHeight(sinceHeight)
	return r.collect(ctx, req, driveKey)
}

// Resume continues a GetAllEntities call that stopped with a
// GatewayUnavailableError, starting after cursor.
func (r *Resolver) Resume(ctx context.Context, kind arfs.EntityType, driveID, owner string, sinceHeight int64, cursor string, driveKey *keys.DriveKey) ([]arfs.Entity, error) {
	req := gql.NewRequest(
		gql.Tag(arfs.TagEntityType, string(kind)),
		gql.Tag(arfs.TagDriveID, driveID),
	).WithOwner(owner).WithSinceHeight(sinceHeight)
	req.After = cursor
	return r.collect(ctx, req, driveKey)
}

func (r *Resolver) collect(ctx context.Context, req gql.Request, driveKey *keys.DriveKey) ([]arfs.Entity, error) {
	var out []arfs.Entity
	seen := make(map[string]bool)
	pager := r.client.Pages(req)
	for pager.Next(ctx) {
		for _, edge := range pager.Edges() {
			if seen[edge.TxID] {
				continue
			}
			seen[edge.TxID] = true
			e, err := r.decodeEdge(ctx, edge, driveKey)
			if err != nil {
				if skippable(err) {
					r.logger.Warn("skipping malformed entity version", "tx", edge.TxID, "error", err)
					continue
				}
				return out, err
			}
			out = append(out, e)
		}
	}
	if err := pager.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// ListDrives returns the latest version of every drive owned by owner.
// Private drives cannot be decrypted without their passphrase, so they are
// returned as invalid-password sentinels carrying the drive's identity.
func (r *Resolver) ListDrives(ctx context.Context, owner string) ([]*arfs.Drive, error) {
	req := gql.NewRequest(gql.Tag(arfs.TagEntityType, string(arfs.DriveEntity))).WithOwner(owner)
	edges, err := r.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	edges = gql.DedupeEdges(edges)

	byID := make(map[string]*arfs.Drive)
	var order []string
	for _, i := range latestFirst(edges) {
		id := edges[i].Tags.Value(arfs.TagDriveID)
		if _, ok := byID[id]; ok || id == "" {
			continue
		}
		e, err := r.decodeEdge(ctx, edges[i], nil)
		if err != nil {
			if skippable(err) {
				r.logger.Warn("skipping malformed drive", "tx", edges[i].TxID, "error", err)
				continue
			}
			return nil, err
		}
		d, ok := e.(*arfs.Drive)
		if !ok {
			continue
		}
		byID[id] = d
		order = append(order, id)
	}

	drives := make([]*arfs.Drive, 0, len(order))
	for _, id := range order {
		drives = append(drives, byID[id])
	}
	return drives, nil
}

// decodeEdge fetches and decodes the payload of one edge. Decryption
// failures become sentinels; malformed payloads return ErrMalformedPayload.
func (r *Resolver) decodeEdge(ctx context.Context, edge gql.Edge, driveKey *keys.DriveKey) (arfs.Entity, error) {
	body, err := r.Body(ctx, edge.TxID, edge.BundledIn)
	if err != nil {
		return nil, err
	}
	payload := arfs.TaggedPayload{Tags: edge.Tags, Body: body}
	e, err := r.codec.Decode(payload, edge.TxID, driveKey)
	if errors.Is(err, ardrive.ErrDecryption) {
		r.logger.Debug("entity version failed to decrypt", "tx", edge.TxID)
		e, err = r.codec.Sentinel(payload, edge.TxID)
	}
	if err != nil {
		return nil, err
	}
	m := e.Meta()
	m.Owner = edge.Owner
	m.BlockHeight = edge.BlockHeight
	m.BundledIn = edge.BundledIn
	return e, nil
}

// Body returns the payload of txID, from the vault when cached. bundledIn
// names the outer bundle to unpack when the gateway does not serve the item
// on its own.
func (r *Resolver) Body(ctx context.Context, txID, bundledIn string) ([]byte, error) {
	if r.vault != nil {
		if ok, err := r.vault.HasContent(txID); err == nil && ok {
			var buf bytes.Buffer
			if err := r.vault.GetContent(txID, &buf); err == nil {
				return buf.Bytes(), nil
			}
		}
	}

	body, err := r.gateway.GetData(ctx, txID)
	if errors.Is(err, ardrive.ErrNotFound) && bundledIn != "" {
		body, err = r.fromBundle(ctx, txID, bundledIn)
	}
	if err != nil {
		if errors.Is(err, ardrive.ErrNotFound) {
			return nil, fmt.Errorf("body of %s: %w: %w", txID, ardrive.ErrMalformedPayload, err)
		}
		return nil, fmt.Errorf("fetching body of %s: %w", txID, err)
	}
	r.cache(txID, body)
	return body, nil
}

// FileData returns the plaintext content of f. The data transaction's tags
// are looked up first: private content needs its cipher parameters, and a
// bundled item may only be served through its bundle.
func (r *Resolver) FileData(ctx context.Context, f *arfs.File, driveKey *keys.DriveKey) ([]byte, error) {
	if f.DataTxID == "" {
		return nil, fmt.Errorf("file %s has no data transaction: %w", f.EntityID, ardrive.ErrNotFound)
	}
	edges, err := r.client.Query(ctx, gql.NewRequest().WithIDs(f.DataTxID))
	if err != nil {
		return nil, fmt.Errorf("looking up data of file %s: %w", f.EntityID, err)
	}
	var edge gql.Edge
	if len(edges) > 0 {
		edge = edges[0]
	} else if f.Privacy == arfs.Private {
		return nil, fmt.Errorf("data transaction %s of file %s is not indexed yet: %w", f.DataTxID, f.EntityID, ardrive.ErrNotFound)
	}

	body, err := r.Body(ctx, f.DataTxID, edge.BundledIn)
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeData(arfs.TaggedPayload{Tags: edge.Tags, Body: body}, f, driveKey)
}

// fromBundle extracts itemID from bundleID. Items that fail verification
// are skipped, so one bad item does not hide the rest of the bundle.
func (r *Resolver) fromBundle(ctx context.Context, itemID, bundleID string) ([]byte, error) {
	raw, err := r.gateway.GetData(ctx, bundleID)
	if err != nil {
		return nil, err
	}
	items, badItems := ledger.DecodeBundle(raw)
	if badItems != nil {
		r.logger.Warn("skipping invalid bundle items", "bundle", bundleID, "valid", len(items), "error", badItems)
	}
	var found []byte
	for _, item := range items {
		r.cache(item.ID, item.Data)
		if item.ID == itemID {
			found = item.Data
		}
	}
	switch {
	case found != nil:
		return found, nil
	case badItems != nil:
		return nil, fmt.Errorf("bundle %s: %w: %w", bundleID, ardrive.ErrMalformedPayload, badItems)
	default:
		return nil, fmt.Errorf("item %s not in bundle %s: %w", itemID, bundleID, ardrive.ErrNotFound)
	}
}

func (r *Resolver) cache(txID string, body []byte) {
	if r.vault == nil {
		return
	}
	if err := r.vault.PutContent(txID, bytes.NewReader(body), int64(len(body))); err != nil {
		r.logger.Warn("caching payload failed", "tx", txID, "error", err)
	}
}

// latestFirst returns edge indexes ordered by descending Unix-Time tag,
// later edges first among equal times.
func latestFirst(edges []gql.Edge) []int {
	idx := make([]int, len(edges))
	times := make([]int64, len(edges))
	for i, e := range edges {
		idx[i] = i
		times[i], _ = strconv.ParseInt(e.Tags.Value(arfs.TagUnixTime), 10, 64)
	}
	sort.Slice(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		if times[a] != times[b] {
			return times[a] > times[b]
		}
		return a > b
	})
	return idx
}

func skippable(err error) bool {
	return errors.Is(err, ardrive.ErrMalformedPayload)
}
