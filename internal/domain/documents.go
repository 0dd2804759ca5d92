package domain

// Document types accepted by the verification gate.
const (
	DocIDCard                   = "ID_CARD"
	DocDrivingLicense           = "DRIVING_LICENSE"
	DocVehicleRegistration      = "VEHICLE_REGISTRATION"
	DocInsurance                = "INSURANCE"
	DocQualificationCertificate = "QUALIFICATION_CERTIFICATE"
	DocProofOfAddress           = "PROOF_OF_ADDRESS"
	DocBusinessRegistration     = "BUSINESS_REGISTRATION"
)

var requiredDocuments = map[string][]string{
	RoleDeliverer: {DocIDCard, DocDrivingLicense, DocVehicleRegistration, DocInsurance},
	RoleProvider:  {DocIDCard, DocQualificationCertificate, DocInsurance, DocProofOfAddress},
	RoleMerchant:  {DocIDCard, DocBusinessRegistration, DocProofOfAddress},
}

// RequiredDocuments returns the document types that must all be approved
// before an actor with the given role may transact. Roles without a
// verification gate return nil.
func RequiredDocuments(role string) []string {
	types := requiredDocuments[role]
	out := make([]string, len(types))
	copy(out, types)
	return out
}

// RequiresVerification reports whether the role is gated by documents.
func RequiresVerification(role string) bool {
	_, ok := requiredDocuments[role]
	return ok
}

// KnownDocumentType reports whether t is accepted for the given role.
func KnownDocumentType(role, t string) bool {
	for _, req := range requiredDocuments[role] {
		if req == t {
			return true
		}
	}
	return false
}
