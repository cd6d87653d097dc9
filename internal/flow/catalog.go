package flow

import "github.com/BTreeMap/MemberFlow/internal/models"

// Profile fields used for pre-fill hints.
const (
	ProfileFullName        = "full_name"
	ProfileNationality     = "nationality"
	ProfileCurrentCountry  = "current_country"
	ProfileDestinationCity = "destination_city"
	ProfileOccupation      = "occupation"
)

var yesNo = []models.Option{
	{Value: "yes", Label: "Yes"},
	{Value: "no", Label: "No"},
}

// Catalog returns the built-in question sets.
func Catalog() []models.QuestionSet {
	return []models.QuestionSet{
		coverLetterSet(),
		apostilleSet(),
		relocationGuideSet(),
		healthcareGuideSet(),
	}
}

func coverLetterSet() models.QuestionSet {
	return models.QuestionSet{
		Flow:  models.FlowCoverLetter,
		Title: "Visa Application Cover Letter",
		Intro: "Let's prepare your {title}. I'll ask a few short questions and then draft the letter for you.",
		Questions: []models.Question{
			{
				Key:       "visa_type",
				Prompt:    "Which visa are you applying for?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "d7", Label: "D7 passive income visa"},
					{Value: "digital_nomad", Label: "Digital nomad visa"},
					{Value: "work", Label: "Work visa"},
					{Value: "study", Label: "Student visa"},
				},
			},
			{
				Key:          "full_name",
				Prompt:       "What is your full name as it appears on your passport?",
				InputKind:    models.InputFreeText,
				Placeholder:  "e.g. Maria Silva",
				ProfileField: ProfileFullName,
			},
			{
				Key:          "nationality",
				Prompt:       "What is your nationality?",
				InputKind:    models.InputFreeText,
				ProfileField: ProfileNationality,
			},
			{
				Key:       "income_source",
				Prompt:    "What is your main source of income?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "remote_employment", Label: "Remote employment"},
					{Value: "freelance", Label: "Freelance or self-employment"},
					{Value: "pension", Label: "Pension"},
					{Value: "passive", Label: "Rental or investment income"},
				},
				Condition: models.Condition{"visa_type": {"d7", "digital_nomad"}},
			},
			{
				Key:          "employer_name",
				Prompt:       "Who is your employer?",
				InputKind:    models.InputFreeText,
				ProfileField: ProfileOccupation,
				Condition: models.Condition{
					"income_source": {"remote_employment"},
					"visa_type":     {"work"},
				},
			},
			{
				Key:       "institution",
				Prompt:    "Which school or university accepted you?",
				InputKind: models.InputFreeText,
				Condition: models.Condition{"visa_type": {"study"}},
			},
			{
				Key:       "accommodation",
				Prompt:    "What is your accommodation situation?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "purchased", Label: "I have purchased a property"},
					{Value: "purchasing", Label: "I am purchasing a property"},
					{Value: "renting", Label: "I have a rental contract"},
					{Value: "staying_family", Label: "Staying with family or friends"},
					{Value: "not_yet", Label: "Not arranged yet"},
				},
			},
			{
				Key:          "accommodation_address",
				Prompt:       "What is the address of the property?",
				InputKind:    models.InputFreeText,
				ProfileField: ProfileDestinationCity,
				Condition:    models.Condition{"accommodation": {"purchased", "purchasing", "renting"}},
			},
			{
				Key:       "family_members",
				Prompt:    "Who is relocating with you?",
				InputKind: models.InputMultiChoice,
				Options: []models.Option{
					{Value: "spouse", Label: "Spouse or partner"},
					{Value: "children", Label: "Children"},
					{Value: "parents", Label: "Parents"},
					{Value: "none", Label: "Nobody, just me"},
				},
			},
			{
				Key:         "additional_notes",
				Prompt:      "Anything else the consulate should know?",
				InputKind:   models.InputFreeText,
				Placeholder: "Ties to the country, language skills, previous visits...",
			},
		},
	}
}

func apostilleSet() models.QuestionSet {
	return models.QuestionSet{
		Flow:  models.FlowApostille,
		Title: "Apostille Request Checklist",
		Intro: "This builds your {title} so you know exactly which documents need legalising and where.",
		Questions: []models.Question{
			{
				Key:       "documents",
				Prompt:    "Which documents need an apostille?",
				InputKind: models.InputMultiChoice,
				Options: []models.Option{
					{Value: "birth_certificate", Label: "Birth certificate"},
					{Value: "marriage_certificate", Label: "Marriage certificate"},
					{Value: "criminal_record", Label: "Criminal record certificate"},
					{Value: "diploma", Label: "Diploma or transcript"},
				},
			},
			{
				Key:       "issuing_country",
				Prompt:    "Which country issued the documents?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "us", Label: "United States"},
					{Value: "uk", Label: "United Kingdom"},
					{Value: "canada", Label: "Canada"},
					{Value: "brazil", Label: "Brazil"},
					{Value: "other", Label: "Other"},
				},
			},
			{
				Key:          "issuing_state",
				Prompt:       "Which US state issued the documents?",
				InputKind:    models.InputFreeText,
				Placeholder:  "e.g. California",
				ProfileField: ProfileCurrentCountry,
				Condition:    models.Condition{"issuing_country": {"us"}},
			},
			{
				Key:       "fbi_check",
				Prompt:    "Is your criminal record an FBI identity history summary?",
				InputKind: models.InputSingleChoice,
				Options:   yesNo,
				Condition: models.Condition{"documents": {"criminal_record"}},
			},
			{
				Key:       "translation_needed",
				Prompt:    "Do the documents need a certified translation?",
				InputKind: models.InputSingleChoice,
				Options:   yesNo,
			},
			{
				Key:       "translation_language",
				Prompt:    "Into which language?",
				InputKind: models.InputFreeText,
				Condition: models.Condition{"translation_needed": {"yes"}},
			},
			{
				Key:         "deadline",
				Prompt:      "By when do you need the documents ready?",
				InputKind:   models.InputFreeText,
				Placeholder: "e.g. 15 March",
			},
		},
	}
}

func relocationGuideSet() models.QuestionSet {
	return models.QuestionSet{
		Flow:  models.FlowRelocationGuide,
		Title: "Personal Relocation Guide",
		Intro: "Welcome to your {title}. Answer a few questions and I'll put together a plan for your first months.",
		Questions: []models.Question{
			{
				Key:       "accommodation",
				Prompt:    "Where will you be living when you arrive?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "purchased", Label: "A property I have purchased"},
					{Value: "purchasing", Label: "A property I am purchasing"},
					{Value: "renting", Label: "A rental"},
					{Value: "staying_family", Label: "With family or friends"},
					{Value: "short_term", Label: "Short-term accommodation"},
				},
			},
			{
				Key:          "property_region",
				Prompt:       "Which city or region is the property in?",
				InputKind:    models.InputFreeText,
				ProfileField: ProfileDestinationCity,
				Condition:    models.Condition{"accommodation": {"purchased", "purchasing", "renting"}},
			},
			{
				Key:       "household",
				Prompt:    "Who is moving with you?",
				InputKind: models.InputMultiChoice,
				Options: []models.Option{
					{Value: "solo", Label: "Just me"},
					{Value: "partner", Label: "Partner"},
					{Value: "children", Label: "Children"},
					{Value: "pets", Label: "Pets"},
				},
			},
			{
				Key:       "schooling",
				Prompt:    "What kind of schooling are you considering?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "public", Label: "Public school"},
					{Value: "private", Label: "Private school"},
					{Value: "international", Label: "International school"},
					{Value: "undecided", Label: "Undecided"},
				},
				Condition: models.Condition{"household": {"children"}},
			},
			{
				Key:       "pet_import",
				Prompt:    "Have your pets been microchipped and vaccinated against rabies?",
				InputKind: models.InputSingleChoice,
				Options:   yesNo,
				Condition: models.Condition{"household": {"pets"}},
			},
			{
				Key:       "work_situation",
				Prompt:    "What will your work situation be?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "remote", Label: "Working remotely"},
					{Value: "local_job", Label: "Local employment"},
					{Value: "business", Label: "Starting a business"},
					{Value: "retired", Label: "Retired"},
				},
			},
			{
				Key:       "priorities",
				Prompt:    "What should the guide focus on?",
				InputKind: models.InputMultiChoice,
				Options: []models.Option{
					{Value: "tax", Label: "Tax registration"},
					{Value: "banking", Label: "Opening a bank account"},
					{Value: "healthcare", Label: "Healthcare"},
					{Value: "driving", Label: "Driving licence exchange"},
				},
			},
		},
	}
}

func healthcareGuideSet() models.QuestionSet {
	return models.QuestionSet{
		Flow:  models.FlowHealthcareGuide,
		Title: "Healthcare Access Guide",
		Intro: "Let's build your {title}.",
		Questions: []models.Question{
			{
				Key:       "coverage",
				Prompt:    "How do you plan to cover healthcare?",
				InputKind: models.InputSingleChoice,
				Options: []models.Option{
					{Value: "public", Label: "Public health system"},
					{Value: "private", Label: "Private insurance"},
					{Value: "both", Label: "Both"},
					{Value: "undecided", Label: "Not sure yet"},
				},
			},
			{
				Key:         "private_budget",
				Prompt:      "What monthly budget do you have for private insurance?",
				InputKind:   models.InputFreeText,
				Placeholder: "e.g. 80 EUR",
				Condition:   models.Condition{"coverage": {"private", "both"}},
			},
			{
				Key:       "prescriptions",
				Prompt:    "Do you take regular prescription medication?",
				InputKind: models.InputSingleChoice,
				Options:   yesNo,
			},
			{
				Key:       "medication_list",
				Prompt:    "Which medications do you take?",
				InputKind: models.InputFreeText,
				Condition: models.Condition{"prescriptions": {"yes"}},
			},
			{
				Key:         "health_notes",
				Prompt:      "Any ongoing conditions or specialist care we should plan for?",
				InputKind:   models.InputFreeText,
				Placeholder: "Type 'none' if not applicable",
			},
		},
	}
}
