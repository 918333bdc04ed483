package preprocess

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"bankml/internal/errors"
)

// StratifiedSplit partitions row indices into train and test sets so that
// every class keeps its share of rows in both. The test set holds
// ceil(testSize*n) rows; per-class test counts are the proportional shares
// rounded by largest remainder. The result depends only on labels,
// testSize and seed.
func StratifiedSplit(labels []int, testSize float64, seed int64) (train, test []int, err error) {
	n := len(labels)
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.ValidationError(fmt.Sprintf("test size must be in (0, 1), got %v", testSize))
	}

	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, nil, errors.ValidationError(fmt.Sprintf("cannot split %d rows with test size %v into non-empty partitions", n, testSize))
	}

	byClass := make(map[int][]int)
	for i, y := range labels {
		byClass[y] = append(byClass[y], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, nil, errors.ValidationError(fmt.Sprintf("class %d has only %d row; stratification needs at least 2 per class", c, len(byClass[c])))
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, errors.ValidationError(fmt.Sprintf("partitions of %d/%d rows cannot hold all %d classes", nTrain, nTest, len(classes)))
	}

	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = len(byClass[c])
	}
	testCounts := allocate(counts, nTest)

	rng := rand.New(rand.NewSource(seed))
	for i, c := range classes {
		members := byClass[c]
		perm := rng.Perm(len(members))
		for j, p := range perm {
			if j < testCounts[i] {
				test = append(test, members[p])
			} else {
				train = append(train, members[p])
			}
		}
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })

	return train, test, nil
}

// allocate distributes total draws across classes proportionally to counts.
// Floors first, then the remaining draws go to the largest fractional parts;
// ties favour the larger class, then the earlier class.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}

	out := make([]int, len(counts))
	remainders := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		out[i] = int(math.Floor(exact))
		remainders[i] = exact - float64(out[i])
		assigned += out[i]
	}

	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if remainders[ia] != remainders[ib] {
			return remainders[ia] > remainders[ib]
		}
		return counts[ia] > counts[ib]
	})

	for k := 0; assigned < total; k = (k + 1) % len(order) {
		i := order[k]
		if out[i] < counts[i] {
			out[i]++
			assigned++
		}
	}
	return out
}
