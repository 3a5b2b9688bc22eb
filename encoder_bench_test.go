package jobmanager

import (
	"encoding/json"
	"testing"
)

func makeSmallData() Data {
	return NewDataBuilder().PutString("group_id", "__signal_group__v2__!00ff").PutInt("to_revision", 5).Build()
}

func makeLargeData() Data {
	b := NewDataBuilder()
	tags := make([]string, 50)
	for i := range tags {
		tags[i] = "tag-" + string(rune('a'+(i%26)))
		b.PutInt(tags[i], i)
	}
	return b.PutStringArray("tags", tags).PutLong("ts", 1_700_000_000_000).PutBool("flag", true).Build()
}

func BenchmarkJSONEncoder_Data(b *testing.B) {
	cases := []struct {
		name string
		gen  func() Data
	}{
		{"Small", makeSmallData},
		{"Large", makeLargeData},
	}
	enc := &JSONEncoder{}
	for _, cse := range cases {
		b.Run(cse.name+"/Encode", func(b *testing.B) {
			val := cse.gen()
			warm, _ := enc.Encode(val)
			b.ReportAllocs()
			b.SetBytes(int64(len(warm)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := enc.Encode(val); err != nil {
					b.Fatal(err)
				}
			}
		})
		b.Run(cse.name+"/Decode", func(b *testing.B) {
			data, _ := enc.Encode(cse.gen())
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var dst Data
				if err := enc.Decode(data, &dst); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Baseline using stdlib json directly (useful for relative comparisons)
func BenchmarkStdlibJSON_Decode_Small(b *testing.B) {
	data, _ := json.Marshal(makeSmallData())
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var dst Data
		if err := json.Unmarshal(data, &dst); err != nil {
			b.Fatal(err)
		}
	}
}
