// Package stellar is the ledger gateway: all Horizon interaction lives here.
//
// Reads (transaction lookups, operation pages, account balances) go through a
// small JSON client with retry, since they are idempotent. Writes (funding,
// payments, account merges) are built and signed with the Stellar SDK and
// submitted exactly once; a failed submission is returned to the caller, never
// replayed here.
package stellar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stellar/go/amount"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon/operations"
	"github.com/stellar/go/txnbuild"

	"github.com/lumenpass/lumenpass/internal/retry"
)

var (
	ErrNotFound         = errors.New("stellar: resource not found")
	ErrSubmissionFailed = errors.New("stellar: transaction submission failed")
)

const (
	// NativeAssetCode is the asset code reported for native-asset operations.
	NativeAssetCode = "XLM"

	// transactionTimeout bounds the validity window of submitted transactions.
	transactionTimeout = 30

	readAttempts  = 3
	readBaseDelay = 500 * time.Millisecond
)

// Transaction is the subset of an on-chain transaction the core cares about.
type Transaction struct {
	Hash       string `json:"hash"`
	Ledger     int64  `json:"ledger"`
	Memo       string `json:"memo"`
	MemoType   string `json:"memo_type"`
	Successful bool   `json:"successful"`
}

// PaymentOperation is a payment-type operation resolved from a transaction.
// Account-creation operations are normalized into the same shape: the funded
// account becomes To and the starting balance becomes Amount.
type PaymentOperation struct {
	Type            string
	From            string
	To              string
	Amount          string
	AssetType       string
	AssetCode       string
	TransactionHash string
}

// AssetCodeOrNative returns the operation's asset code, mapping the native
// asset to XLM.
func (op PaymentOperation) AssetCodeOrNative() string {
	if op.AssetType == "native" || op.AssetCode == "" {
		return NativeAssetCode
	}
	return op.AssetCode
}

// StreamRecord is a single record from the live payment stream.
type StreamRecord struct {
	Type            string
	TransactionHash string
}

// Keypair is a freshly generated account keypair. The secret is raw; callers
// must encrypt it before persisting.
type Keypair struct {
	PublicKey string
	Secret    string
}

// Client talks to a Horizon instance.
type Client struct {
	horizon           *horizonclient.Client
	horizonURL        string
	networkPassphrase string
	http              *http.Client
	logger            *slog.Logger
}

// NewClient creates a gateway client for the given Horizon instance.
func NewClient(horizonURL, networkPassphrase string, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: 20 * time.Second}
	return &Client{
		horizon: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       httpClient,
		},
		horizonURL:        strings.TrimRight(horizonURL, "/"),
		networkPassphrase: networkPassphrase,
		http:              httpClient,
		logger:            logger,
	}
}

// CheckConnectivity verifies the Horizon instance is reachable (health checks).
func (c *Client) CheckConnectivity(ctx context.Context) error {
	var root struct {
		HorizonVersion string `json:"horizon_version"`
	}
	return c.get(ctx, "/", &root)
}

// GetTransaction fetches an on-chain transaction by hash.
// Returns ErrNotFound if the network does not know the hash.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	var tx Transaction
	if err := c.get(ctx, "/transactions/"+url.PathEscape(hash), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionOperations resolves the payment-type operations of a
// transaction (payment and create_account); all other operation types are
// dropped. A missing transaction yields ErrNotFound.
func (c *Client) GetTransactionOperations(ctx context.Context, hash string) ([]PaymentOperation, error) {
	var page struct {
		Embedded struct {
			Records []struct {
				Type            string `json:"type"`
				From            string `json:"from"`
				To              string `json:"to"`
				Amount          string `json:"amount"`
				AssetType       string `json:"asset_type"`
				AssetCode       string `json:"asset_code"`
				Account         string `json:"account"`
				StartingBalance string `json:"starting_balance"`
				TransactionHash string `json:"transaction_hash"`
			} `json:"records"`
		} `json:"_embedded"`
	}

	path := "/transactions/" + url.PathEscape(hash) + "/operations?limit=200"
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}

	var ops []PaymentOperation
	for _, r := range page.Embedded.Records {
		switch r.Type {
		case "payment":
			ops = append(ops, PaymentOperation{
				Type:            r.Type,
				From:            r.From,
				To:              r.To,
				Amount:          r.Amount,
				AssetType:       r.AssetType,
				AssetCode:       r.AssetCode,
				TransactionHash: r.TransactionHash,
			})
		case "create_account":
			ops = append(ops, PaymentOperation{
				Type:            r.Type,
				From:            r.From,
				To:              r.Account,
				Amount:          r.StartingBalance,
				AssetType:       "native",
				TransactionHash: r.TransactionHash,
			})
		}
	}
	return ops, nil
}

// GetNativeBalance returns an account's XLM balance as a decimal string.
func (c *Client) GetNativeBalance(ctx context.Context, accountID string) (string, error) {
	var acct struct {
		Balances []struct {
			Balance   string `json:"balance"`
			AssetType string `json:"asset_type"`
		} `json:"balances"`
	}
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountID), &acct); err != nil {
		return "", err
	}
	for _, b := range acct.Balances {
		if b.AssetType == "native" {
			return b.Balance, nil
		}
	}
	return "0", nil
}

// GenerateKeypair creates a new random account keypair. No network call.
func (c *Client) GenerateKeypair() (Keypair, error) {
	kp, err := keypair.Random()
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{PublicKey: kp.Address(), Secret: kp.Seed()}, nil
}

// FundAccount creates and funds destination on-chain from the funder account.
func (c *Client) FundAccount(ctx context.Context, funderSecret, destination, startingBalance string) (string, error) {
	return c.submit(ctx, funderSecret, &txnbuild.CreateAccount{
		Destination: destination,
		Amount:      startingBalance,
	})
}

// SendPayment submits an exact-amount payment from the source account.
// assetCode XLM (any case) selects the native asset; anything else requires
// an issuer.
func (c *Client) SendPayment(ctx context.Context, sourceSecret, destination, amt, assetCode, assetIssuer string) (string, error) {
	var asset txnbuild.Asset
	if strings.EqualFold(assetCode, NativeAssetCode) {
		asset = txnbuild.NativeAsset{}
	} else {
		asset = txnbuild.CreditAsset{Code: assetCode, Issuer: assetIssuer}
	}

	return c.submit(ctx, sourceSecret, &txnbuild.Payment{
		Destination: destination,
		Amount:      amt,
		Asset:       asset,
	})
}

// MergeAccount sweeps the source account's entire remaining balance into
// destination and retires the source account.
func (c *Client) MergeAccount(ctx context.Context, sourceSecret, destination string) (string, error) {
	return c.submit(ctx, sourceSecret, &txnbuild.AccountMerge{
		Destination: destination,
	})
}

// StreamPayments opens a live stream of payment operations starting at cursor
// and invokes handler for each record. Blocks until ctx is cancelled or the
// stream errors.
func (c *Client) StreamPayments(ctx context.Context, cursor string, handler func(StreamRecord)) error {
	req := horizonclient.OperationRequest{Cursor: cursor}
	return c.horizon.StreamPayments(ctx, req, func(op operations.Operation) {
		handler(StreamRecord{
			Type:            op.GetType(),
			TransactionHash: op.GetTransactionHash(),
		})
	})
}

// submit loads the source account, builds a single-operation transaction,
// signs it and submits it. Returns the transaction hash.
func (c *Client) submit(ctx context.Context, sourceSecret string, op txnbuild.Operation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	kp, err := keypair.ParseFull(sourceSecret)
	if err != nil {
		return "", fmt.Errorf("parse source secret: %w", err)
	}

	account, err := c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: kp.Address()})
	if err != nil {
		return "", fmt.Errorf("load source account %s: %w", kp.Address(), err)
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(transactionTimeout),
		},
		Operations: []txnbuild.Operation{op},
	})
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	tx, err = tx.Sign(c.networkPassphrase, kp)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	resp, err := c.horizon.SubmitTransaction(tx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	c.logger.Debug("transaction submitted", "hash", resp.Hash, "source", kp.Address())
	return resp.Hash, nil
}

// get fetches a Horizon JSON resource with retry on transient failures.
// 404 maps to ErrNotFound; other 4xx responses are not retried.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, readAttempts, readBaseDelay, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.horizonURL+path, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("horizon request %s: %w", path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return retry.Permanent(fmt.Errorf("%w: %s", ErrNotFound, path))
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return retry.Permanent(fmt.Errorf("horizon %s returned %d: %s", path, resp.StatusCode, body))
		case resp.StatusCode >= 500:
			return fmt.Errorf("horizon %s returned %d", path, resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode horizon response %s: %w", path, err))
		}
		return nil
	})
}

// ParseStroops parses a decimal asset amount into stroops (1e-7 units).
func ParseStroops(v string) (int64, error) {
	return amount.ParseInt64(v)
}

// supportedAssets is the fixed set of asset codes the platform settles in.
var supportedAssets = map[string]struct{}{
	"XLM":  {},
	"USDC": {},
}

// IsSupportedAsset reports whether the asset code (case-insensitive) is
// accepted for settlement.
func IsSupportedAsset(code string) bool {
	_, ok := supportedAssets[strings.ToUpper(code)]
	return ok
}

// NormalizeAssetCode uppercases an asset code.
func NormalizeAssetCode(code string) string {
	return strings.ToUpper(code)
}
