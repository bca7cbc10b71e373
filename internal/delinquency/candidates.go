package delinquency

import "github.com/sells-group/delinquency-bot/internal/model"

// Candidates returns one candidate per distinct username across both buckets,
// in source order. The first occurrence wins, so bucket-30 rows take
// precedence over bucket-45 rows for the network address used in the lookup.
func Candidates(bucket30, bucket45 []model.Account) []model.Candidate {
	seen := make(map[string]struct{}, len(bucket30)+len(bucket45))
	out := make([]model.Candidate, 0, len(bucket30)+len(bucket45))

	add := func(b model.Bucket, rows []model.Account) {
		for _, r := range rows {
			if _, dup := seen[r.Username]; dup {
				continue
			}
			seen[r.Username] = struct{}{}
			out = append(out, model.Candidate{
				Username:       r.Username,
				NetworkAddress: r.NetworkAddress,
				Bucket:         b,
			})
		}
	}
	add(model.Bucket30, bucket30)
	add(model.Bucket45, bucket45)

	return out
}
