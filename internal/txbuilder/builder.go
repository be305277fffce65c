// Package txbuilder turns entities into signed ledger transactions, data
// items and bundles. Tags always come from the entity codec.
package txbuilder

import (
	"fmt"

	"ardrive-go/internal/arfs"
	"ardrive-go/internal/keys"
	"ardrive-go/internal/ledger"
)

// FeePolicy decides the transfer attached to a data-carrying transaction.
// An empty target means no transfer.
type FeePolicy interface {
	Fee(dataSize int64) (target string, quantity string, err error)
}

// NoFee attaches no transfer.
type NoFee struct{}

func (NoFee) Fee(int64) (string, string, error) { return "", "0", nil }

// Builder signs transactions with one wallet.
type Builder struct {
	wallet *ledger.Wallet
	codec  *arfs.Codec
	fee    FeePolicy
}

// New creates a builder with the NoFee policy.
func New(wallet *ledger.Wallet, codec *arfs.Codec) *Builder {
	return &Builder{wallet: wallet, codec: codec, fee: NoFee{}}
}

// WithFeePolicy returns a copy of b using p for data transactions and bundles.
func (b *Builder) WithFeePolicy(p FeePolicy) *Builder {
	bb := *b
	bb.fee = p
	return &bb
}

// Codec returns the codec used to encode payloads.
func (b *Builder) Codec() *arfs.Codec { return b.codec }

// Owner returns the address transactions are signed for.
func (b *Builder) Owner() string { return b.wallet.Address() }

// Build encodes e and signs it as a standalone metadata transaction.
// On success e carries the transaction ID and owner.
func (b *Builder) Build(e arfs.Entity, driveKey *keys.DriveKey) (*ledger.Transaction, error) {
	p, err := b.codec.Encode(e, driveKey)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", e.Kind(), e.Meta().EntityID, err)
	}
	tx := ledger.NewTransaction(p.Body, p.Tags)
	tx.Sign(b.wallet)
	b.stamp(e.Meta(), tx.ID)
	return tx, nil
}

// BuildData signs the data transaction of f, applying the fee policy.
func (b *Builder) BuildData(f *arfs.File, content []byte, driveKey *keys.DriveKey) (*ledger.Transaction, error) {
	p, err := b.codec.EncodeData(f, content, driveKey)
	if err != nil {
		return nil, err
	}
	tx := ledger.NewTransaction(p.Body, p.Tags)
	if err := b.applyFee(tx); err != nil {
		return nil, err
	}
	tx.Sign(b.wallet)
	return tx, nil
}

// BuildFile signs the data and metadata transactions of f. The metadata
// references the data transaction, so f.DataTxID is set before encoding it.
func (b *Builder) BuildFile(f *arfs.File, content []byte, driveKey *keys.DriveKey) (dataTx, metadataTx *ledger.Transaction, err error) {
	if f.Size == 0 {
		f.Size = int64(len(content))
	}
	dataTx, err = b.BuildData(f, content, driveKey)
	if err != nil {
		return nil, nil, err
	}
	f.DataTxID = dataTx.ID
	metadataTx, err = b.Build(f, driveKey)
	if err != nil {
		return nil, nil, err
	}
	return dataTx, metadataTx, nil
}

// BuildItem encodes e and signs it as a data item for bundling.
func (b *Builder) BuildItem(e arfs.Entity, driveKey *keys.DriveKey) (*ledger.DataItem, error) {
	p, err := b.codec.Encode(e, driveKey)
	if err != nil {
		return nil, fmt.Errorf("encoding %s %s: %w", e.Kind(), e.Meta().EntityID, err)
	}
	item := ledger.NewDataItem(p.Body, p.Tags)
	item.Sign(b.wallet)
	b.stamp(e.Meta(), item.ID)
	return item, nil
}

// BuildFileItems is BuildFile for bundling: it returns the data and metadata items.
func (b *Builder) BuildFileItems(f *arfs.File, content []byte, driveKey *keys.DriveKey) (dataItem, metadataItem *ledger.DataItem, err error) {
	if f.Size == 0 {
		f.Size = int64(len(content))
	}
	p, err := b.codec.EncodeData(f, content, driveKey)
	if err != nil {
		return nil, nil, err
	}
	dataItem = ledger.NewDataItem(p.Body, p.Tags)
	dataItem.Sign(b.wallet)
	f.DataTxID = dataItem.ID
	metadataItem, err = b.BuildItem(f, driveKey)
	if err != nil {
		return nil, nil, err
	}
	return dataItem, metadataItem, nil
}

// BuildBundle wraps signed items into one JSON bundle transaction.
func (b *Builder) BuildBundle(items []*ledger.DataItem) (*ledger.Transaction, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("bundle has no items")
	}
	body, err := ledger.EncodeBundle(items)
	if err != nil {
		return nil, fmt.Errorf("encoding bundle: %w", err)
	}
	tags := ledger.Tags{}.
		Add(arfs.TagAppName, b.codec.AppName()).
		Add(arfs.TagAppVersion, b.codec.AppVersion()).
		Add(arfs.TagContentType, arfs.ContentTypeBinary).
		Add(ledger.TagBundleFormat, ledger.BundleFormat).
		Add(ledger.TagBundleVersion, ledger.BundleVersion)
	tx := ledger.NewTransaction(body, tags)
	if err := b.applyFee(tx); err != nil {
		return nil, err
	}
	tx.Sign(b.wallet)
	return tx, nil
}

func (b *Builder) applyFee(tx *ledger.Transaction) error {
	target, quantity, err := b.fee.Fee(tx.DataSize)
	if err != nil {
		return fmt.Errorf("computing fee: %w", err)
	}
	if target != "" {
		tx.Target = target
		tx.Quantity = quantity
	}
	return nil
}

func (b *Builder) stamp(m *arfs.Metadata, txID string) {
	m.TxID = txID
	m.Owner = b.wallet.Address()
}
