// fork from github.com/tendermint/tendermint/state/store.go
package state

import (
	"github.com/pkg/errors"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmdb "github.com/tendermint/tm-db"
)

var stateKey = []byte("stateKey")

// Store defines the state store interface.
//
// It is used to load and save the current state as a whole, including its
// validator sets and consensus parameters.
type Store interface {
	// Load loads the current state of the blockchain
	Load() (State, error)
	// Save overwrites the previous state with the updated one
	Save(State) error
	// Bootstrap is used for bootstrapping state when not starting from a initial height.
	Bootstrap(State) error
}

// dbStore wraps a tm-db backend.
type dbStore struct {
	db tmdb.DB
}

var _ Store = (*dbStore)(nil)

// NewStore creates the dbStore of the state pkg.
func NewStore(db tmdb.DB) Store {
	return dbStore{db}
}

// Load returns the most recently persisted state, or an empty state when
// nothing was saved yet.
func (store dbStore) Load() (State, error) {
	var state State

	buf, err := store.db.Get(stateKey)
	if err != nil {
		return state, err
	}
	if len(buf) == 0 {
		return state, nil
	}

	if err := tmjson.Unmarshal(buf, &state); err != nil {
		// data has been corrupted or the encoding changed
		return state, errors.Wrap(err, "cannot unmarshal persisted state; the database may be corrupt")
	}

	return state, nil
}

// Save persists the State to the database.
func (store dbStore) Save(state State) error {
	buf, err := tmjson.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	if err := store.db.SetSync(stateKey, buf); err != nil {
		return errors.Wrap(err, "persist state")
	}
	return nil
}

// Bootstrap saves a new state, used e.g. by state sync when starting from
// non-zero height.
func (store dbStore) Bootstrap(state State) error {
	return store.Save(state)
}
