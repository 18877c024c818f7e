package fhir

// ---------------------------------------------------------------------------
// Rule constructors
// ---------------------------------------------------------------------------

func tok(name string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamToken, Paths: paths}
}

func tokSys(name, system string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamToken, Paths: paths, SystemFilter: system}
}

func str(name string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamString, Paths: paths}
}

func date(name string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamDate, Paths: paths}
}

func ref(name string, targets []string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamReference, Paths: paths, Targets: targets}
}

func qty(name string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamQuantity, Paths: paths}
}

func uri(name string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamURI, Paths: paths}
}

func num(name string, paths ...string) ExtractionRule {
	return ExtractionRule{ParamName: name, Type: SearchParamNumber, Paths: paths}
}

func types(t ...string) []string { return t }

var (
	tPatient      = types("Patient")
	tSubject      = types("Patient", "Group")
	tEncounter    = types("Encounter")
	tPractitioner = types("Practitioner")
	tOrganization = types("Organization")
	tLocation     = types("Location")
	tAgent        = types("Practitioner", "PractitionerRole", "Organization", "Patient", "RelatedPerson", "Device", "CareTeam")
	tRequest      = types("CarePlan", "ServiceRequest", "MedicationRequest", "ImmunizationRecommendation", "NutritionOrder", "DeviceRequest")
)

// humanNameRules covers the name-related parameters shared by person types.
func humanNameRules() []ExtractionRule {
	return []ExtractionRule{
		str("name", "name"),
		str("family", "name.family"),
		str("given", "name.given"),
	}
}

func addressRules() []ExtractionRule {
	return []ExtractionRule{
		str("address", "address"),
		str("address-city", "address.city"),
		str("address-state", "address.state"),
		str("address-postalcode", "address.postalCode"),
		str("address-country", "address.country"),
		tok("address-use", "address.use"),
	}
}

func with(base []ExtractionRule, more ...[]ExtractionRule) []ExtractionRule {
	out := append([]ExtractionRule(nil), base...)
	for _, m := range more {
		out = append(out, m...)
	}
	return out
}

// ---------------------------------------------------------------------------
// Universal parameters
// ---------------------------------------------------------------------------

func universalRules() []ExtractionRule {
	return []ExtractionRule{
		tok("_id", "id"),
		date("_lastUpdated", "meta.lastUpdated"),
		tok("_tag", "meta.tag"),
		tok("_security", "meta.security"),
		uri("_profile", "meta.profile"),
		uri("_source", "meta.source"),
	}
}

// ---------------------------------------------------------------------------
// Resource-specific parameters (FHIR R4)
// ---------------------------------------------------------------------------

func defaultRules() map[string][]ExtractionRule {
	return map[string][]ExtractionRule{
		"Patient": with([]ExtractionRule{
			tok("identifier", "identifier"),
			tok("active", "active"),
			tok("gender", "gender"),
			date("birthdate", "birthDate"),
			date("death-date", "deceasedDateTime"),
			tok("deceased", "deceasedBoolean"),
			tok("telecom", "telecom"),
			tok("language", "communication.language"),
			ref("general-practitioner", types("Organization", "Practitioner", "PractitionerRole"), "generalPractitioner"),
			ref("organization", tOrganization, "managingOrganization"),
			ref("link", types("Patient", "RelatedPerson"), "link.other"),
		}, humanNameRules(), addressRules()),

		"Practitioner": with([]ExtractionRule{
			tok("identifier", "identifier"),
			tok("active", "active"),
			tok("gender", "gender"),
			tok("telecom", "telecom"),
			tok("communication", "communication"),
		}, humanNameRules(), addressRules()),

		"PractitionerRole": {
			tok("identifier", "identifier"),
			tok("active", "active"),
			tok("role", "code"),
			tok("specialty", "specialty"),
			date("date", "period"),
			ref("practitioner", tPractitioner, "practitioner"),
			ref("organization", tOrganization, "organization"),
			ref("location", tLocation, "location"),
			ref("service", types("HealthcareService"), "healthcareService"),
			tok("telecom", "telecom"),
		},

		"Organization": with([]ExtractionRule{
			tok("identifier", "identifier"),
			tok("active", "active"),
			tok("type", "type"),
			str("name", "name", "alias"),
			ref("partof", tOrganization, "partOf"),
			ref("endpoint", types("Endpoint"), "endpoint"),
		}, addressRules()),

		"Location": with([]ExtractionRule{
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("operational-status", "operationalStatus"),
			tok("type", "type"),
			str("name", "name", "alias"),
			ref("organization", tOrganization, "managingOrganization"),
			ref("partof", tLocation, "partOf"),
			ref("endpoint", types("Endpoint"), "endpoint"),
		}, addressRules()),

		"RelatedPerson": with([]ExtractionRule{
			tok("identifier", "identifier"),
			tok("active", "active"),
			tok("gender", "gender"),
			date("birthdate", "birthDate"),
			tok("relationship", "relationship"),
			tok("telecom", "telecom"),
			ref("patient", tPatient, "patient"),
		}, humanNameRules(), addressRules()),

		"Condition": {
			tok("identifier", "identifier"),
			tok("code", "code"),
			tok("clinical-status", "clinicalStatus"),
			tok("verification-status", "verificationStatus"),
			tok("category", "category"),
			tok("severity", "severity"),
			tok("body-site", "bodySite"),
			tok("evidence", "evidence.code"),
			tok("stage", "stage.summary"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("asserter", types("Practitioner", "PractitionerRole", "Patient", "RelatedPerson"), "asserter"),
			ref("evidence-detail", nil, "evidence.detail"),
			date("onset-date", "onset[x]"),
			date("abatement-date", "abatement[x]"),
			date("recorded-date", "recordedDate"),
			str("onset-info", "onsetString"),
		},

		"Observation": {
			tok("identifier", "identifier"),
			tok("code", "code"),
			tok("category", "category"),
			tok("status", "status"),
			tok("method", "method"),
			tok("data-absent-reason", "dataAbsentReason"),
			tok("combo-code", "code", "component.code"),
			tok("component-code", "component.code"),
			tok("value-concept", "valueCodeableConcept"),
			tok("combo-value-concept", "valueCodeableConcept", "component.valueCodeableConcept"),
			str("value-string", "valueString"),
			date("value-date", "valueDateTime", "valuePeriod"),
			date("date", "effective[x]"),
			qty("value-quantity", "valueQuantity"),
			qty("component-value-quantity", "component.valueQuantity"),
			qty("combo-value-quantity", "valueQuantity", "component.valueQuantity"),
			ref("subject", types("Patient", "Group", "Device", "Location"), "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("performer", tAgent, "performer"),
			ref("based-on", tRequest, "basedOn"),
			ref("derived-from", nil, "derivedFrom"),
			ref("has-member", types("Observation", "QuestionnaireResponse", "MolecularSequence"), "hasMember"),
			ref("part-of", nil, "partOf"),
			ref("specimen", types("Specimen"), "specimen"),
			ref("device", types("Device", "DeviceMetric"), "device"),
			ref("focus", nil, "focus"),
		},

		"MedicationRequest": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("intent", "intent"),
			tok("priority", "priority"),
			tok("category", "category"),
			tok("code", "medicationCodeableConcept"),
			ref("medication", types("Medication"), "medicationReference"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("requester", tAgent, "requester"),
			ref("intended-performer", tAgent, "performer"),
			tok("intended-performertype", "performerType"),
			date("authoredon", "authoredOn"),
			date("date", "dosageInstruction.timing.event"),
			ref("intended-dispenser", tOrganization, "dispenseRequest.performer"),
		},

		"MedicationAdministration": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("code", "medicationCodeableConcept"),
			tok("reason-given", "reasonCode"),
			tok("reason-not-given", "statusReason"),
			ref("medication", types("Medication"), "medicationReference"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("context", types("Encounter", "EpisodeOfCare"), "context"),
			ref("performer", tAgent, "performer.actor"),
			ref("request", types("MedicationRequest"), "request"),
			ref("device", types("Device"), "device"),
			date("effective-time", "effective[x]"),
		},

		"MedicationStatement": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("category", "category"),
			tok("code", "medicationCodeableConcept"),
			ref("medication", types("Medication"), "medicationReference"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("context", types("Encounter", "EpisodeOfCare"), "context"),
			ref("source", tAgent, "informationSource"),
			ref("part-of", nil, "partOf"),
			date("effective", "effective[x]"),
		},

		"MedicationDispense": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("type", "type"),
			tok("code", "medicationCodeableConcept"),
			ref("medication", types("Medication"), "medicationReference"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("context", types("Encounter", "EpisodeOfCare"), "context"),
			ref("performer", tAgent, "performer.actor"),
			ref("prescription", types("MedicationRequest"), "authorizingPrescription"),
			ref("receiver", types("Patient", "Practitioner"), "receiver"),
			ref("destination", tLocation, "destination"),
			date("whenhandedover", "whenHandedOver"),
			date("whenprepared", "whenPrepared"),
		},

		"Medication": {
			tok("identifier", "identifier"),
			tok("code", "code"),
			tok("status", "status"),
			tok("form", "form"),
			tok("ingredient-code", "ingredient.itemCodeableConcept"),
			tok("lot-number", "batch.lotNumber"),
			ref("ingredient", types("Substance", "Medication"), "ingredient.itemReference"),
			ref("manufacturer", tOrganization, "manufacturer"),
			date("expiration-date", "batch.expirationDate"),
		},

		"Encounter": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("class", "class"),
			tok("type", "type"),
			tok("participant-type", "participant.type"),
			tok("reason-code", "reasonCode"),
			tok("special-arrangement", "hospitalization.specialArrangement"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("participant", types("Practitioner", "PractitionerRole", "RelatedPerson"), "participant.individual"),
			ref("practitioner", tPractitioner, "participant.individual"),
			ref("service-provider", tOrganization, "serviceProvider"),
			ref("location", tLocation, "location.location"),
			ref("reason-reference", nil, "reasonReference"),
			ref("episode-of-care", types("EpisodeOfCare"), "episodeOfCare"),
			ref("based-on", types("ServiceRequest"), "basedOn"),
			ref("part-of", tEncounter, "partOf"),
			ref("account", types("Account"), "account"),
			ref("appointment", types("Appointment"), "appointment"),
			ref("diagnosis", types("Condition", "Procedure"), "diagnosis.condition"),
			date("date", "period"),
			date("location-period", "location.period"),
			qty("length", "length"),
		},

		"EpisodeOfCare": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("type", "type"),
			ref("patient", tPatient, "patient"),
			ref("organization", tOrganization, "managingOrganization"),
			ref("care-manager", tPractitioner, "careManager"),
			ref("condition", types("Condition"), "diagnosis.condition"),
			ref("incoming-referral", types("ServiceRequest"), "referralRequest"),
			date("date", "period"),
		},

		"DiagnosticReport": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("category", "category"),
			tok("code", "code"),
			tok("conclusion", "conclusionCode"),
			ref("subject", types("Patient", "Group", "Device", "Location"), "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("performer", tAgent, "performer"),
			ref("results-interpreter", tAgent, "resultsInterpreter"),
			ref("result", types("Observation"), "result"),
			ref("specimen", types("Specimen"), "specimen"),
			ref("based-on", tRequest, "basedOn"),
			ref("media", types("Media"), "media.link"),
			date("date", "effective[x]"),
			date("issued", "issued"),
		},

		"ServiceRequest": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("intent", "intent"),
			tok("priority", "priority"),
			tok("category", "category"),
			tok("code", "code"),
			tok("performer-type", "performerType"),
			tok("requisition", "requisition"),
			tok("body-site", "bodySite"),
			ref("subject", types("Patient", "Group", "Location", "Device"), "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("requester", tAgent, "requester"),
			ref("performer", tAgent, "performer"),
			ref("based-on", tRequest, "basedOn"),
			ref("replaces", types("ServiceRequest"), "replaces"),
			ref("specimen", types("Specimen"), "specimen"),
			date("authored", "authoredOn"),
			date("occurrence", "occurrence[x]"),
			uri("instantiates-canonical", "instantiatesCanonical"),
			uri("instantiates-uri", "instantiatesUri"),
		},

		"Task": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("intent", "intent"),
			tok("priority", "priority"),
			tok("code", "code"),
			tok("business-status", "businessStatus"),
			tok("performer", "performerType"),
			tok("group-identifier", "groupIdentifier"),
			ref("subject", nil, "for"),
			ref("patient", tPatient, "for"),
			ref("focus", nil, "focus"),
			ref("encounter", tEncounter, "encounter"),
			ref("requester", tAgent, "requester"),
			ref("owner", tAgent, "owner"),
			ref("based-on", nil, "basedOn"),
			ref("part-of", types("Task"), "partOf"),
			date("authored-on", "authoredOn"),
			date("modified", "lastModified"),
			date("period", "executionPeriod"),
		},

		"DocumentReference": {
			tok("identifier", "identifier", "masterIdentifier"),
			tok("status", "status"),
			tok("type", "type"),
			tok("category", "category"),
			tok("relation", "relatesTo.code"),
			tok("contenttype", "content.attachment.contentType"),
			tok("format", "content.format"),
			tok("language", "content.attachment.language"),
			tok("security-label", "securityLabel"),
			tok("facility", "context.facilityType"),
			tok("setting", "context.practiceSetting"),
			tok("event", "context.event"),
			ref("subject", types("Patient", "Practitioner", "Group", "Device"), "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", types("Encounter", "EpisodeOfCare"), "context.encounter"),
			ref("author", tAgent, "author"),
			ref("authenticator", tAgent, "authenticator"),
			ref("custodian", tOrganization, "custodian"),
			ref("relatesto", types("DocumentReference"), "relatesTo.target"),
			ref("related", nil, "context.related"),
			date("date", "date"),
			date("period", "context.period"),
			str("description", "description"),
			uri("location", "content.attachment.url"),
		},

		"ImagingStudy": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("modality", "series.modality"),
			tok("bodysite", "series.bodySite"),
			tok("series", "series.uid"),
			tok("instance", "series.instance.uid"),
			tok("dicom-class", "series.instance.sopClass"),
			tok("reason", "reasonCode"),
			ref("subject", types("Patient", "Device", "Group"), "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("basedon", tRequest, "basedOn"),
			ref("referrer", types("Practitioner", "PractitionerRole"), "referrer"),
			ref("interpreter", types("Practitioner", "PractitionerRole"), "interpreter"),
			ref("performer", tAgent, "series.performer.actor"),
			ref("endpoint", types("Endpoint"), "endpoint", "series.endpoint"),
			date("started", "started"),
		},

		"AllergyIntolerance": {
			tok("identifier", "identifier"),
			tok("clinical-status", "clinicalStatus"),
			tok("verification-status", "verificationStatus"),
			tok("type", "type"),
			tok("category", "category"),
			tok("criticality", "criticality"),
			tok("code", "code", "reaction.substance"),
			tok("manifestation", "reaction.manifestation"),
			tok("severity", "reaction.severity"),
			tok("route", "reaction.exposureRoute"),
			ref("patient", tPatient, "patient"),
			ref("recorder", tAgent, "recorder"),
			ref("asserter", tAgent, "asserter"),
			ref("encounter", tEncounter, "encounter"),
			date("date", "recordedDate"),
			date("onset", "reaction.onset"),
			date("last-date", "lastOccurrence"),
		},

		"Procedure": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("category", "category"),
			tok("code", "code"),
			tok("reason-code", "reasonCode"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("performer", tAgent, "performer.actor"),
			ref("location", tLocation, "location"),
			ref("reason-reference", nil, "reasonReference"),
			ref("based-on", tRequest, "basedOn"),
			ref("part-of", nil, "partOf"),
			date("date", "performed[x]"),
			uri("instantiates-canonical", "instantiatesCanonical"),
		},

		"Immunization": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("status-reason", "statusReason"),
			tok("vaccine-code", "vaccineCode"),
			tok("reason-code", "reasonCode"),
			tok("target-disease", "protocolApplied.targetDisease"),
			ref("patient", tPatient, "patient"),
			ref("location", tLocation, "location"),
			ref("manufacturer", tOrganization, "manufacturer"),
			ref("performer", tAgent, "performer.actor"),
			ref("reaction", types("Observation"), "reaction.detail"),
			ref("reason-reference", nil, "reasonReference"),
			date("date", "occurrence[x]"),
			date("reaction-date", "reaction.date"),
			str("lot-number", "lotNumber"),
			str("series", "protocolApplied.series"),
		},

		"CarePlan": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("intent", "intent"),
			tok("category", "category"),
			tok("activity-code", "activity.detail.code"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("care-team", types("CareTeam"), "careTeam"),
			ref("condition", types("Condition"), "addresses"),
			ref("goal", types("Goal"), "goal"),
			ref("activity-reference", nil, "activity.reference"),
			ref("performer", tAgent, "activity.detail.performer"),
			ref("based-on", types("CarePlan"), "basedOn"),
			ref("part-of", types("CarePlan"), "partOf"),
			ref("replaces", types("CarePlan"), "replaces"),
			date("date", "period"),
			date("activity-date", "activity.detail.scheduled[x]"),
			uri("instantiates-canonical", "instantiatesCanonical"),
		},

		"CareTeam": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("category", "category"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("participant", tAgent, "participant.member"),
			date("date", "period"),
		},

		"Goal": {
			tok("identifier", "identifier"),
			tok("lifecycle-status", "lifecycleStatus"),
			tok("achievement-status", "achievementStatus"),
			tok("category", "category"),
			ref("subject", types("Patient", "Group", "Organization"), "subject"),
			ref("patient", tPatient, "subject"),
			date("start-date", "start[x]"),
			date("target-date", "target.due[x]"),
		},

		"Claim": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("use", "use"),
			tok("priority", "priority"),
			ref("patient", tPatient, "patient"),
			ref("provider", tAgent, "provider"),
			ref("insurer", tOrganization, "insurer"),
			ref("enterer", tAgent, "enterer"),
			ref("facility", tLocation, "facility"),
			ref("encounter", tEncounter, "item.encounter"),
			ref("care-team", tAgent, "careTeam.provider"),
			ref("payee", tAgent, "payee.party"),
			ref("procedure-udi", types("Device"), "procedure.udi"),
			ref("item-udi", types("Device"), "item.udi"),
			date("created", "created"),
		},

		"ExplanationOfBenefit": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			ref("patient", tPatient, "patient"),
			ref("provider", tAgent, "provider"),
			ref("claim", types("Claim"), "claim"),
			ref("coverage", types("Coverage"), "insurance.coverage"),
			ref("care-team", tAgent, "careTeam.provider"),
			ref("encounter", tEncounter, "item.encounter"),
			ref("enterer", tAgent, "enterer"),
			ref("facility", tLocation, "facility"),
			ref("payee", tAgent, "payee.party"),
			date("created", "created"),
			str("disposition", "disposition"),
		},

		"Coverage": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("type", "type"),
			tok("class-type", "class.type"),
			str("class-value", "class.value"),
			str("dependent", "dependent"),
			ref("beneficiary", tPatient, "beneficiary"),
			ref("patient", tPatient, "beneficiary"),
			ref("subscriber", types("Patient", "RelatedPerson"), "subscriber"),
			ref("policy-holder", types("Patient", "RelatedPerson", "Organization"), "policyHolder"),
			ref("payor", types("Organization", "Patient", "RelatedPerson"), "payor"),
		},

		"Device": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("type", "type"),
			ref("patient", tPatient, "patient"),
			ref("organization", tOrganization, "owner"),
			ref("location", tLocation, "location"),
			str("manufacturer", "manufacturer"),
			str("model", "modelNumber"),
			str("udi-di", "udiCarrier.deviceIdentifier"),
			str("udi-carrier", "udiCarrier.carrierHRF"),
			str("device-name", "deviceName.name"),
			uri("url", "url"),
		},

		"Appointment": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("service-category", "serviceCategory"),
			tok("service-type", "serviceType"),
			tok("specialty", "specialty"),
			tok("appointment-type", "appointmentType"),
			tok("reason-code", "reasonCode"),
			tok("part-status", "participant.status"),
			ref("actor", tAgent, "participant.actor"),
			ref("patient", tPatient, "participant.actor"),
			ref("practitioner", tPractitioner, "participant.actor"),
			ref("location", tLocation, "participant.actor"),
			ref("reason-reference", nil, "reasonReference"),
			ref("slot", types("Slot"), "slot"),
			ref("based-on", types("ServiceRequest"), "basedOn"),
			ref("supporting-info", nil, "supportingInformation"),
			date("date", "start"),
		},

		"Provenance": {
			tok("signature-type", "signature.type"),
			tok("agent-type", "agent.type"),
			tok("agent-role", "agent.role"),
			ref("target", nil, "target"),
			ref("patient", tPatient, "target"),
			ref("agent", tAgent, "agent.who"),
			ref("location", tLocation, "location"),
			ref("entity", nil, "entity.what"),
			date("recorded", "recorded"),
			date("when", "occurred[x]"),
		},

		"Specimen": {
			tok("identifier", "identifier"),
			tok("accession", "accessionIdentifier"),
			tok("type", "type"),
			tok("status", "status"),
			tok("bodysite", "collection.bodySite"),
			tok("container", "container.type"),
			tok("container-id", "container.identifier"),
			ref("subject", types("Patient", "Group", "Device", "Substance", "Location"), "subject"),
			ref("patient", tPatient, "subject"),
			ref("collector", tAgent, "collection.collector"),
			ref("parent", types("Specimen"), "parent"),
			date("collected", "collection.collected[x]"),
		},

		"FamilyMemberHistory": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("code", "condition.code"),
			tok("relationship", "relationship"),
			tok("sex", "sex"),
			ref("patient", tPatient, "patient"),
			date("date", "date"),
			uri("instantiates-canonical", "instantiatesCanonical"),
		},

		"QuestionnaireResponse": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			uri("questionnaire", "questionnaire"),
			ref("subject", nil, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("author", tAgent, "author"),
			ref("source", types("Patient", "Practitioner", "PractitionerRole", "RelatedPerson"), "source"),
			ref("based-on", types("CarePlan", "ServiceRequest"), "basedOn"),
			ref("part-of", types("Observation", "Procedure"), "partOf"),
			date("authored", "authored"),
		},

		"Composition": {
			tok("identifier", "identifier"),
			tok("status", "status"),
			tok("type", "type"),
			tok("category", "category"),
			tok("confidentiality", "confidentiality"),
			tok("section", "section.code"),
			ref("subject", nil, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("author", tAgent, "author"),
			ref("attester", tAgent, "attester.party"),
			ref("entry", nil, "section.entry"),
			ref("related-ref", nil, "relatesTo.targetReference"),
			date("date", "date"),
			date("period", "event.period"),
			str("title", "title"),
		},

		"RiskAssessment": {
			tok("identifier", "identifier"),
			tok("method", "method"),
			tok("risk", "prediction.qualitativeRisk"),
			ref("subject", tSubject, "subject"),
			ref("patient", tPatient, "subject"),
			ref("encounter", tEncounter, "encounter"),
			ref("performer", types("Practitioner", "PractitionerRole", "Device"), "performer"),
			ref("condition", types("Condition"), "condition"),
			date("date", "occurrence[x]"),
			num("probability", "prediction.probabilityDecimal"),
		},
	}
}

// LoincSystem and SnomedSystem are the code systems most often used as
// system filters on token rules.
const (
	LoincSystem  = "loinc.org"
	SnomedSystem = "snomed.info/sct"
)

// LabCodeRule is an example of a filtered token rule: only LOINC codings of
// an Observation code are indexed under "loinc-code".
var LabCodeRule = tokSys("loinc-code", LoincSystem, "code")
