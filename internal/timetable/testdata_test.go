package timetable

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

var fixtureFiles = map[string]string{
	"agency.txt": `agency_id,agency_name,agency_url,agency_timezone
GVB,GVB,https://www.gvb.nl,Europe/Amsterdam
`,
	"stops.txt": `stop_id,stop_code,stop_name,stop_lat,stop_lon
S1,1001,Centraal,52.3780,4.9000
S2,,Dam,52.3730,4.8930
S3,None,Museumplein,52.3570,4.8800
S4,1001,Centraal Perron B,52.3781,4.9010
`,
	"routes.txt": `route_id,route_short_name,route_long_name,route_type
R1,12,Centraal - Museumplein,0
R2,N5,Nachtbus,3
`,
	"trips.txt": `route_id,service_id,trip_id,trip_headsign
R1,WD,T1,Museumplein
R1,WD,T2,Centraal
R2,SAT,T3,Museumplein
R1,OFF,T4,Museumplein
`,
	"stop_times.txt": `trip_id,arrival_time,departure_time,stop_id,stop_sequence
T1,08:00:00,08:00:00,S1,1
T1,08:05:00,08:05:00,S2,2
T1,08:12:00,08:12:00,S3,3
T2,09:00:00,09:00:00,S3,1
T2,09:07:00,09:07:00,S2,2
T2,09:15:00,09:15:00,S1,3
T3,23:50:00,23:50:00,S4,1
T3,24:10:00,24:10:00,S3,2
T4,08:30:00,08:30:00,S1,1
T4,08:40:00,08:40:00,S3,2
`,
	"calendar_dates.txt": `service_id,date,exception_type
WD,20240115,1
SAT,20240115,1
OFF,20240115,2
`,
}

// buildArchive zips files, skipping any name listed in omit.
func buildArchive(t *testing.T, files map[string]string, omit ...string) []byte {
	t.Helper()
	skip := map[string]bool{}
	for _, name := range omit {
		skip[name] = true
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		if skip[name] {
			continue
		}
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func loadFixture(t *testing.T) *Index {
	t.Helper()
	idx, err := LoadBytes(buildArchive(t, fixtureFiles))
	require.NoError(t, err)
	return idx
}
