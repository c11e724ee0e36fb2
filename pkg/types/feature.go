package types

type Feature string

const (
	FeaturePersonalizedPractice Feature = "personalized_practice"
	FeatureMockExam             Feature = "mock_exam"
	FeatureAITutor              Feature = "ai_tutor"
)

var AllFeatures = []Feature{
	FeaturePersonalizedPractice,
	FeatureMockExam,
	FeatureAITutor,
}

func (f Feature) Valid() bool {
	for _, known := range AllFeatures {
		if f == known {
			return true
		}
	}
	return false
}

// UsageUnlimited disables the free-tier cap for a feature.
const UsageUnlimited int64 = -1
