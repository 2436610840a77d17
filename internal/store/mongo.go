package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/AnshRaj112/taskverse-backend/internal/models"
)

const versionField = "_v"

// Mongo stores each logical collection in a Mongo collection of the same name,
// keyed by record id. Writes publish change notices on the ChangeFeed, which
// drives live subscriptions in every process.
type Mongo struct {
	db     *mongo.Database
	feed   *ChangeFeed
	rules  *Rules
	logger *zap.Logger
	now    func() time.Time
}

func NewMongo(db *mongo.Database, feed *ChangeFeed, rules *Rules, logger *zap.Logger) *Mongo {
	return &Mongo{db: db, feed: feed, rules: rules, logger: logger, now: time.Now}
}

// EnsureIndexes creates the indexes the app's queries rely on.
// Called on startup after Mongo has connected.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		CollectionSubmissions: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_user_created")},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_status_created")},
		},
		CollectionTransactions: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("idx_user_created")},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("idx_kind_status")},
		},
		CollectionTasks: {
			{Keys: bson.D{{Key: "requiredLevel", Value: 1}}, Options: options.Index().SetName("idx_required_level")},
		},
		CollectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("idx_email")},
		},
	}
	for collection, idx := range indexes {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", collection, err)
		}
	}
	return nil
}

func (s *Mongo) find(ctx context.Context, collection, id string) (Record, int64, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	version, _ := toFloat(plainValue(m[versionField]))
	delete(m, "_id")
	delete(m, versionField)
	return fromBSON(m), int64(version), nil
}

func (s *Mongo) GetOne(ctx context.Context, path string) (Record, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	rec, _, err := s.find(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := s.rules.Check(ctx, models.OpReadOne, path, rec, nil); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Mongo) query(ctx context.Context, q Query) ([]Record, error) {
	opts := options.Find()
	if len(q.OrderBy) > 0 {
		sortDoc := bson.D{}
		for _, o := range q.OrderBy {
			dir := 1
			if o.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: o.Field, Value: dir})
		}
		opts.SetSort(sortDoc)
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.db.Collection(q.Collection).Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []Record{}
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		delete(m, "_id")
		delete(m, versionField)
		out = append(out, fromBSON(m))
	}
	return out, cur.Err()
}

func mongoFilter(q Query) bson.M {
	filter := bson.M{}
	for _, f := range q.Filters {
		ops, _ := filter[f.Field].(bson.M)
		if ops == nil {
			ops = bson.M{}
		}
		switch f.Op {
		case OpEq:
			ops["$eq"] = f.Value
		case OpNe:
			ops["$ne"] = f.Value
		case OpLt:
			ops["$lt"] = f.Value
		case OpLte:
			ops["$lte"] = f.Value
		case OpGt:
			ops["$gt"] = f.Value
		case OpGte:
			ops["$gte"] = f.Value
		case OpIn:
			ops["$in"] = toSlice(f.Value)
		case OpArrayContains:
			ops["$elemMatch"] = bson.M{"$eq": f.Value}
		}
		filter[f.Field] = ops
	}
	return filter
}

func (s *Mongo) SubscribeOne(ctx context.Context, path string, onData func(Record), onError func(error)) Unsubscribe {
	collection, id, err := SplitPath(path)
	if err != nil {
		onError(err)
		return func() {}
	}
	return s.subscribe(ctx, collection, id, func(ctx context.Context) error {
		rec, _, err := s.find(ctx, collection, id)
		if err != nil {
			return err
		}
		if err := s.rules.Check(ctx, models.OpReadOne, path, rec, nil); err != nil {
			return err
		}
		if ctx.Err() == nil {
			onData(rec)
		}
		return nil
	}, onError)
}

func (s *Mongo) SubscribeMany(ctx context.Context, q Query, onData func([]Record), onError func(error)) Unsubscribe {
	return s.subscribe(ctx, q.Collection, "", func(ctx context.Context) error {
		if err := s.rules.CheckQuery(ctx, q); err != nil {
			return err
		}
		recs, err := s.query(ctx, q)
		if err != nil {
			return err
		}
		if ctx.Err() == nil {
			onData(recs)
		}
		return nil
	}, onError)
}

// subscribe runs fetch once immediately and again after every change notice
// for the collection (and id, when set). Notices arriving during a fetch are
// coalesced into one follow-up fetch, so deliveries stay in order.
func (s *Mongo) subscribe(parent context.Context, collection, id string, fetch func(context.Context) error, onError func(error)) Unsubscribe {
	ctx, cancel := context.WithCancel(parent)
	wake := make(chan struct{}, 1)
	wake <- struct{}{}

	stopWatch := s.feed.Watch(collection, func(c Change) {
		if id != "" && c.ID != id {
			return
		}
		select {
		case wake <- struct{}{}:
		default:
		}
	})

	go func() {
		defer stopWatch()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
			if err := fetch(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, models.ErrPermissionDenied) {
					s.logger.Warn("live subscription fetch failed",
						zap.String("collection", collection),
						zap.String("id", id),
						zap.Error(err),
					)
				}
				onError(err)
				return
			}
		}
	}()

	return func() {
		cancel()
	}
}

func (s *Mongo) Create(ctx context.Context, path string, value Record) error {
	return s.BatchWrite(ctx, []WriteOp{{Kind: WriteSet, Path: path, Value: value}})
}

func (s *Mongo) Update(ctx context.Context, path string, partial Record) error {
	return s.BatchWrite(ctx, []WriteOp{{Kind: WriteUpdate, Path: path, Value: partial}})
}

func (s *Mongo) Delete(ctx context.Context, path string) error {
	return s.BatchWrite(ctx, []WriteOp{{Kind: WriteDelete, Path: path}})
}

type stagedWrite struct {
	WriteOp
	collection string
	id         string
	exists     bool
	version    int64
	guarded    bool // apply only if the stored version still equals version
}

func (s *Mongo) BatchWrite(ctx context.Context, ops []WriteOp) error {
	staged := make([]stagedWrite, 0, len(ops))
	for _, w := range ops {
		collection, id, err := SplitPath(w.Path)
		if err != nil {
			return err
		}
		existing, version, err := s.find(ctx, collection, id)
		if err != nil {
			return fmt.Errorf("reading %s: %w", w.Path, err)
		}
		staged = append(staged, stagedWrite{WriteOp: w, collection: collection, id: id, exists: existing != nil, version: version})
		if err := s.authorize(ctx, w, existing, len(ops) > 1); err != nil {
			return err
		}
	}
	_, err := s.commit(ctx, staged)
	return err
}

func (s *Mongo) authorize(ctx context.Context, w WriteOp, existing Record, batch bool) error {
	if w.Kind == WriteUpdate && existing == nil {
		return models.ErrNotFound
	}
	op := writeOperation(w.Kind, existing != nil)
	if err := s.rules.Check(ctx, op, w.Path, existing, w.Value); err != nil {
		if batch {
			return models.NewPermissionError(w.Path, models.OpWrite, payload(w.Value))
		}
		return err
	}
	return nil
}

// errLostRace aborts a commit whose guarded write found a newer version.
var errLostRace = errors.New("compare-and-set lost")

// commit applies staged writes and publishes their change notices once they
// are durable. Several writes run in one Mongo transaction (a replica set is
// required), so either all of them apply or none does. It reports false when
// a guarded write lost its compare-and-set race.
func (s *Mongo) commit(ctx context.Context, staged []stagedWrite) (bool, error) {
	now := s.now().UTC()
	var changes []Change

	switch len(staged) {
	case 0:
		return true, nil
	case 1:
		c, err := s.applyOne(ctx, staged[0], now)
		if errors.Is(err, errLostRace) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		changes = append(changes, c)
	default:
		session, err := s.db.Client().StartSession()
		if err != nil {
			return false, fmt.Errorf("starting session: %w", err)
		}
		defer session.EndSession(context.Background())

		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
			changes = changes[:0]
			for _, w := range staged {
				c, err := s.applyOne(sc, w, now)
				if err != nil {
					return nil, err
				}
				changes = append(changes, c)
			}
			return nil, nil
		})
		if errors.Is(err, errLostRace) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("committing transaction: %w", err)
		}
	}

	for _, c := range changes {
		if err := s.feed.Publish(ctx, c); err != nil {
			s.logger.Warn("publishing change notice failed",
				zap.String("path", Join(c.Collection, c.ID)), zap.Error(err))
		}
	}
	return true, nil
}

// applyOne performs one staged write. A guarded write whose version moved
// returns errLostRace.
func (s *Mongo) applyOne(ctx context.Context, w stagedWrite, now time.Time) (Change, error) {
	col := s.db.Collection(w.collection)
	filter := bson.M{"_id": w.id}
	if w.guarded {
		filter[versionField] = w.version
	}

	var matched int64
	switch w.Kind {
	case WriteSet:
		doc := bson.M{}
		for k, v := range resolveServerTimestamps(w.Value.Clone(), now) {
			doc[k] = v
		}
		doc["_id"] = w.id
		doc["id"] = w.id
		doc[versionField] = w.version + 1
		if w.guarded && !w.exists {
			_, err := col.InsertOne(ctx, doc)
			if mongo.IsDuplicateKeyError(err) {
				return Change{}, errLostRace
			}
			if err != nil {
				return Change{}, fmt.Errorf("writing %s: %w", w.Path, err)
			}
			matched = 1
			break
		}
		res, err := col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(!w.guarded))
		if err != nil {
			return Change{}, fmt.Errorf("writing %s: %w", w.Path, err)
		}
		matched = res.MatchedCount + res.UpsertedCount
	case WriteUpdate:
		set := bson.M{}
		for k, v := range resolveServerTimestamps(w.Value.Clone(), now) {
			set[k] = v
		}
		res, err := col.UpdateOne(ctx, filter, bson.M{"$set": set, "$inc": bson.M{versionField: 1}})
		if err != nil {
			return Change{}, fmt.Errorf("updating %s: %w", w.Path, err)
		}
		matched = res.MatchedCount
	case WriteDelete:
		res, err := col.DeleteOne(ctx, filter)
		if err != nil {
			return Change{}, fmt.Errorf("deleting %s: %w", w.Path, err)
		}
		matched = res.DeletedCount
		if !w.guarded || !w.exists {
			matched = 1
		}
	}
	if w.guarded && matched == 0 {
		return Change{}, errLostRace
	}

	kind := map[WriteKind]string{WriteSet: "set", WriteUpdate: "update", WriteDelete: "delete"}[w.Kind]
	return Change{Collection: w.collection, ID: w.id, Kind: kind, At: now}, nil
}

// RunAtomic retries fn until its writes commit. Writes to records fn read are
// compare-and-set on the record version, and all writes of one attempt
// commit together or not at all.
func (s *Mongo) RunAtomic(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < MaxAtomicAttempts; attempt++ {
		tx := &mongoTx{ctx: ctx, s: s, reads: make(map[string]mongoRead)}
		if err := fn(tx); err != nil {
			return err
		}

		staged := make([]stagedWrite, 0, len(tx.writes))
		for _, w := range tx.writes {
			collection, id, err := SplitPath(w.Path)
			if err != nil {
				return err
			}
			read, seen := tx.reads[w.Path]
			existing := read.rec
			if !seen {
				existing, read.version, err = s.find(ctx, collection, id)
				if err != nil {
					return fmt.Errorf("reading %s: %w", w.Path, err)
				}
			}
			if err := s.authorize(ctx, w.WriteOp(), existing, true); err != nil {
				return err
			}
			staged = append(staged, stagedWrite{WriteOp: w.WriteOp(), collection: collection, id: id, exists: existing != nil, version: read.version, guarded: seen})
		}

		ok, err := s.commit(ctx, staged)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		s.logger.Debug("atomic write conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return ErrConflict
}

type mongoRead struct {
	rec     Record
	version int64
}

type mongoTx struct {
	ctx    context.Context
	s      *Mongo
	reads  map[string]mongoRead
	writes []txWrite
}

type txWrite WriteOp

func (w txWrite) WriteOp() WriteOp { return WriteOp(w) }

func (tx *mongoTx) Get(path string) (Record, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	rec, version, err := tx.s.find(tx.ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := tx.s.rules.Check(tx.ctx, models.OpReadOne, path, rec, nil); err != nil {
		return nil, err
	}
	tx.reads[path] = mongoRead{rec: rec, version: version}
	return rec.Clone(), nil
}

func (tx *mongoTx) Set(path string, value Record) {
	tx.writes = append(tx.writes, txWrite{Kind: WriteSet, Path: path, Value: value})
}

func (tx *mongoTx) Update(path string, partial Record) {
	tx.writes = append(tx.writes, txWrite{Kind: WriteUpdate, Path: path, Value: partial})
}

func (tx *mongoTx) Delete(path string) {
	tx.writes = append(tx.writes, txWrite{Kind: WriteDelete, Path: path})
}
