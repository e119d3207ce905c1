package fetch

import "testing"

func TestExtractStationID(t *testing.T) {
	cases := map[string]string{
		"http://environment.data.gov.uk/flood-monitoring/id/measures/1029-level-downstream-stage": "1029",
		"http://environment.data.gov.uk/flood-monitoring/id/measures/1029-level-downstream-stage/": "1029",
		"4078":        "4078",
		"4078-flow-i": "4078",
	}
	for in, want := range cases {
		if got := extractStationID(in); got != want {
			t.Errorf("extractStationID(%q) = %q, want %q", in, got, want)
		}
	}
}
