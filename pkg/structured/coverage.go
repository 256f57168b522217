package structured

// FieldCoverage counts, per ActionInput key, how many outputs contain it.
// Keys outside the vocabulary are counted too. Outputs whose ActionInput
// failed validation contribute nothing.
func FieldCoverage(outputs []ParsedOutput) map[string]int {
	counts := make(map[string]int, len(KnownFields))
	for _, out := range outputs {
		for field := range out.ActionInput {
			counts[field]++
		}
	}
	return counts
}
