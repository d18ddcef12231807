package calendar

import "time"

// krxHolidays KRX 휴장일 (주말 제외, 대체공휴일·임시공휴일·연말 휴장 포함)
// 목록 밖의 연도는 LIFECYCLE_HOLIDAY_FILE 로 보강
func krxHolidays() map[time.Time]string {
	days := map[string]string{
		// 2024
		"2024-01-01": "신정",
		"2024-02-09": "설날",
		"2024-02-12": "설날 대체공휴일",
		"2024-03-01": "삼일절",
		"2024-04-10": "국회의원 선거",
		"2024-05-01": "근로자의 날",
		"2024-05-06": "어린이날 대체공휴일",
		"2024-05-15": "부처님오신날",
		"2024-06-06": "현충일",
		"2024-08-15": "광복절",
		"2024-09-16": "추석",
		"2024-09-17": "추석",
		"2024-09-18": "추석",
		"2024-10-01": "국군의 날 임시공휴일",
		"2024-10-03": "개천절",
		"2024-10-09": "한글날",
		"2024-12-25": "성탄절",
		"2024-12-31": "연말 휴장",

		// 2025
		"2025-01-01": "신정",
		"2025-01-27": "임시공휴일",
		"2025-01-28": "설날",
		"2025-01-29": "설날",
		"2025-01-30": "설날",
		"2025-03-03": "삼일절 대체공휴일",
		"2025-05-01": "근로자의 날",
		"2025-05-05": "어린이날·부처님오신날",
		"2025-05-06": "대체공휴일",
		"2025-06-03": "대통령 선거",
		"2025-06-06": "현충일",
		"2025-08-15": "광복절",
		"2025-10-03": "개천절",
		"2025-10-06": "추석",
		"2025-10-07": "추석",
		"2025-10-08": "추석 대체공휴일",
		"2025-10-09": "한글날",
		"2025-12-25": "성탄절",
		"2025-12-31": "연말 휴장",

		// 2026
		"2026-01-01": "신정",
		"2026-02-16": "설날",
		"2026-02-17": "설날",
		"2026-02-18": "설날",
		"2026-03-02": "삼일절 대체공휴일",
		"2026-05-01": "근로자의 날",
		"2026-05-05": "어린이날",
		"2026-05-25": "부처님오신날 대체공휴일",
		"2026-06-03": "지방선거",
		"2026-08-17": "광복절 대체공휴일",
		"2026-09-24": "추석",
		"2026-09-25": "추석",
		"2026-10-05": "개천절 대체공휴일",
		"2026-10-09": "한글날",
		"2026-12-25": "성탄절",
		"2026-12-31": "연말 휴장",
	}

	out := make(map[time.Time]string, len(days))
	for s, name := range days {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			panic("calendar: bad built-in holiday " + s)
		}
		out[d] = name
	}
	return out
}
