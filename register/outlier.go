package register

import "sort"

// rejectOutliers drops the floor(n*proportion) correspondences with the
// largest residuals. proportion 0 returns the input untouched. The returned
// slice shares backing storage with the input, which is reordered.
func rejectOutliers(corrs []correspondence, proportion float64) []correspondence {
	if proportion <= 0 || len(corrs) == 0 {
		return corrs
	}
	sort.Slice(corrs, func(i, j int) bool {
		return corrs[i].residual < corrs[j].residual
	})
	keep := len(corrs) - int(float64(len(corrs))*proportion)
	return corrs[:keep]
}
