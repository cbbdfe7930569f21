package dripd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/iov-one/drip/x/drip"
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/commands/server"
	"github.com/iov-one/weave/crypto"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/x/cash"
	"github.com/iov-one/weave/x/multisig"
	"github.com/iov-one/weave/x/validators"
	abci "github.com/tendermint/tendermint/abci/types"
)

// GenInitOptions will produce some basic options for one rich account, to
// use for dev mode.
//
// When called with no arguments the principal ticker defaults to STK and a
// fresh key is generated for the rich account. Pass a ticker as the first
// argument and an address as the second to override.
func GenInitOptions(args []string) (json.RawMessage, error) {
	code := "STK"
	if len(args) > 0 {
		code = args[0]
		if !coin.IsCC(code) {
			return nil, errors.Wrapf(errors.ErrCurrency, "invalid ticker %q", code)
		}
	}

	var addr weave.Address
	if len(args) > 1 {
		bz, err := hex.DecodeString(args[1])
		if err != nil {
			return nil, errors.Wrap(err, "cannot hex decode address")
		}
		addr = weave.Address(bz)
		if err := addr.Validate(); err != nil {
			return nil, errors.Wrap(err, "invalid address")
		}
	} else {
		// If no address is provided, auto-generate one and print out
		// the keys so that the account can be used.
		bz, keys, err := GenerateCoinKey()
		if err != nil {
			return nil, err
		}
		addr = bz
		fmt.Println(keys)
	}

	type (
		dict  map[string]interface{}
		array []interface{}
	)
	collectorAddr, err := hex.DecodeString("3b11c732b8fc1f09beb34031302fe2ab347c5c14")
	if err != nil {
		return nil, errors.Wrap(err, "cannot hex decode collector address")
	}
	return json.Marshal(dict{
		"cash": array{
			dict{
				"address": addr,
				"coins": array{
					dict{
						"whole":  123456789,
						"ticker": code,
					},
				},
			},
		},
		"conf": dict{
			"cash": cash.Configuration{
				CollectorAddress: collectorAddr,
				MinimalFee:       coin.Coin{Whole: 0}, // no fee
			},
			"migration": dict{
				"admin": addr,
			},
			"drip": drip.Configuration{
				Owner:           addr,
				Admin:           addr,
				PrincipalTicker: code,
				VestingDuration: weave.AsUnixDuration(7 * 24 * time.Hour),
				PowerUnit:       weave.AsUnixDuration(24 * time.Hour),
			},
		},
		// Accrued rewards are paid out in the principal token until
		// the admin whitelists more.
		"rewardtoken": array{code},
		"initialize_schema": []dict{
			{"pkg": "cash", "ver": 1},
			{"pkg": "sigs", "ver": 1},
			{"pkg": "multisig", "ver": 1},
			{"pkg": "validators", "ver": 1},
			{"pkg": "utils", "ver": 1},
			{"pkg": "drip", "ver": 1},
		},
	})
}

// GenerateApp is used to create a stub for server/start.go command
func GenerateApp(options *server.Options) (abci.Application, error) {
	// db goes in a subdir, but "" -> "" for memdb
	var dbPath string
	if options.Home != "" {
		dbPath = filepath.Join(options.Home, "drip.db")
	}

	stack := Stack()
	application, err := Application("dripd", stack, TxDecoder, dbPath, options.Debug)
	if err != nil {
		return nil, err
	}
	application.WithInit(app.ChainInitializers(
		&migration.Initializer{},
		&cash.Initializer{},
		&multisig.Initializer{},
		&validators.Initializer{},
		&drip.Initializer{},
	))

	// set the logger and return
	application.WithLogger(options.Logger)
	return application, nil
}

type output struct {
	Pubkey *crypto.PublicKey  `json:"pub_key"`
	Secret *crypto.PrivateKey `json:"secret"`
}

// GenerateCoinKey returns the address of a public key, along with a json
// representation of the keys. You can give coins to this address and import
// the keys in a client to use them.
func GenerateCoinKey() (weave.Address, string, error) {
	privKey := crypto.GenPrivKeyEd25519()
	pubKey := privKey.PublicKey()
	addr := pubKey.Address()

	out := output{Pubkey: pubKey, Secret: privKey}
	keys, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, "", err
	}

	return addr, string(keys), nil
}
