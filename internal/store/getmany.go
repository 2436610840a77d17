package store

import "context"

// GetMany runs q once: it subscribes, takes the first delivery and releases
// the subscription.
func GetMany(ctx context.Context, s Store, q Query) ([]Record, error) {
	type result struct {
		recs []Record
		err  error
	}
	ch := make(chan result, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	unsub := s.SubscribeMany(ctx, q,
		func(recs []Record) {
			select {
			case ch <- result{recs: recs}:
			default:
			}
		},
		func(err error) {
			select {
			case ch <- result{err: err}:
			default:
			}
		},
	)
	defer unsub()

	select {
	case r := <-ch:
		return r.recs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
